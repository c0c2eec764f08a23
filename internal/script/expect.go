package script

import (
	"strconv"

	"github.com/engine-gc/internal/gc"
	apperrors "github.com/engine-gc/pkg/errors"
)

type expectation struct {
	args int
	run  func(in *Interpreter, args []string) error
}

var expectations = map[string]expectation{
	"alive":     {1, (*Interpreter).expectAlive},
	"dead":      {1, (*Interpreter).expectDead},
	"condemned": {1, (*Interpreter).expectCondemned},
	"state":     {1, (*Interpreter).expectState},
	"objects":   {1, (*Interpreter).expectObjects},
	"finalize":  {1, (*Interpreter).expectFinalize},
	"softroots": {1, (*Interpreter).expectSoftRoots},
	"color":     {2, (*Interpreter).expectColor},
	"flag":      {2, (*Interpreter).expectFlag},
	"noflag":    {2, (*Interpreter).expectNoFlag},
	"weak":      {2, (*Interpreter).expectWeak},
	"torn":      {1, (*Interpreter).expectTorn},
	"stat":      {2, (*Interpreter).expectStat},
}

func mismatch(format string, args ...interface{}) error {
	return apperrors.Newf(apperrors.CodeExpectation, format, args...)
}

func (in *Interpreter) cmdExpect(args []string) error {
	e, ok := expectations[args[0]]
	if !ok {
		return apperrors.Newf(apperrors.CodeScriptError, "unknown expectation %q", args[0])
	}
	if len(args)-1 != e.args {
		return apperrors.Newf(apperrors.CodeScriptError, "expect %s takes %d arguments", args[0], e.args)
	}
	in.expects++
	return e.run(in, args[1:])
}

// alive means allocated, not queued for finalization and not asked to die.
func (in *Interpreter) isAlive(h gc.Handle) bool {
	f, ok := in.c.Flags(h)
	return ok && f&gc.FlagEuthanizeMe == 0 && !in.c.IsCondemned(h)
}

func (in *Interpreter) expectAlive(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	if !in.isAlive(h) {
		return mismatch("%s is not alive", args[0])
	}
	return nil
}

func (in *Interpreter) expectDead(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	if in.c.Valid(h) {
		return mismatch("%s is still allocated", args[0])
	}
	return nil
}

func (in *Interpreter) expectCondemned(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	if !in.c.IsCondemned(h) {
		return mismatch("%s is not in the finalize queue", args[0])
	}
	return nil
}

func (in *Interpreter) expectState(args []string) error {
	want, ok := parseState(args[0])
	if !ok {
		return apperrors.Newf(apperrors.CodeScriptError, "unknown state %q", args[0])
	}
	if got := in.c.State(); got != want {
		return mismatch("state is %s, want %s", got, want)
	}
	return nil
}

func count(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperrors.Newf(apperrors.CodeScriptError, "bad number %q", s)
	}
	return n, nil
}

func (in *Interpreter) expectObjects(args []string) error {
	want, err := count(args[0])
	if err != nil {
		return err
	}
	if got := in.c.Objects(); got != want {
		return mismatch("%d objects, want %d", got, want)
	}
	return nil
}

func (in *Interpreter) expectFinalize(args []string) error {
	want, err := count(args[0])
	if err != nil {
		return err
	}
	if got := in.c.Stats().FinalizeQueue; got != want {
		return mismatch("finalize queue holds %d, want %d", got, want)
	}
	return nil
}

func (in *Interpreter) expectSoftRoots(args []string) error {
	want, err := count(args[0])
	if err != nil {
		return err
	}
	if got := len(in.c.SoftRoots()); got != want {
		return mismatch("%d soft roots, want %d", got, want)
	}
	return nil
}

func (in *Interpreter) expectColor(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	got, ok := in.c.ColorOf(h)
	if !ok {
		return mismatch("%s is gone", args[0])
	}
	if got.String() != args[1] {
		return mismatch("%s is %s, want %s", args[0], got, args[1])
	}
	return nil
}

func parseFlag(s string) (gc.Flags, bool) {
	for f := gc.FlagFixed; f <= gc.FlagReleased; f <<= 1 {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

func (in *Interpreter) flagOf(args []string) (bool, error) {
	h, err := in.handle(args[0])
	if err != nil {
		return false, err
	}
	want, ok := parseFlag(args[1])
	if !ok {
		return false, apperrors.Newf(apperrors.CodeScriptError, "unknown flag %q", args[1])
	}
	f, ok := in.c.Flags(h)
	if !ok {
		return false, mismatch("%s is gone", args[0])
	}
	return f.Has(want), nil
}

func (in *Interpreter) expectFlag(args []string) error {
	set, err := in.flagOf(args)
	if err != nil {
		return err
	}
	if !set {
		return mismatch("%s lacks flag %s", args[0], args[1])
	}
	return nil
}

func (in *Interpreter) expectNoFlag(args []string) error {
	set, err := in.flagOf(args)
	if err != nil {
		return err
	}
	if set {
		return mismatch("%s has flag %s", args[0], args[1])
	}
	return nil
}

// expectWeak reads the weak field through the read barrier; "nil" expects it
// cleared.
func (in *Interpreter) expectWeak(args []string) error {
	_, n, err := in.node(args[0])
	if err != nil {
		return err
	}
	got := n.Weak.Handle(in.c)
	want := gc.Nil
	if args[1] != "nil" {
		if want, err = in.handle(args[1]); err != nil {
			return err
		}
	}
	if got != want {
		return mismatch("%s.weak is %s, want %s", args[0], got, args[1])
	}
	return nil
}

func (in *Interpreter) expectTorn(args []string) error {
	for _, n := range in.torn {
		if n == args[0] {
			return nil
		}
	}
	return mismatch("%s was not torn down", args[0])
}

func statCounter(st gc.Stats, name string) (uint64, bool) {
	switch name {
	case "cycles":
		return st.Cycles, true
	case "full_collections":
		return st.FullCollections, true
	case "marked":
		return st.Marked, true
	case "condemned":
		return st.Condemned, true
	case "finalized":
		return st.Finalized, true
	case "freed":
		return st.Freed, true
	case "released":
		return st.Released, true
	case "destroyed":
		return st.Destroyed, true
	case "barrier_hits":
		return st.BarrierHits, true
	case "read_clears":
		return st.ReadClears, true
	}
	return 0, false
}

func (in *Interpreter) expectStat(args []string) error {
	got, ok := statCounter(in.c.Stats(), args[0])
	if !ok {
		return apperrors.Newf(apperrors.CodeScriptError, "unknown counter %q", args[0])
	}
	want, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return apperrors.Newf(apperrors.CodeScriptError, "bad number %q", args[1])
	}
	if got != want {
		return mismatch("%s is %d, want %d", args[0], got, want)
	}
	return nil
}
