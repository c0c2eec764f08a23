package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/engine-gc/internal/gc"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/utils"
)

// Result summarizes a finished script.
type Result struct {
	Lines        int
	Commands     int
	Expectations int
	// TornDown lists resources in the order their teardown ran.
	TornDown []string
	Stats    gc.Stats
}

// Interpreter executes script commands against its own collector.
type Interpreter struct {
	c     *gc.Collector
	log   utils.Logger
	names map[string]gc.Handle
	roots []string

	line     int
	commands int
	expects  int
	torn     []string
}

// New creates an interpreter with a fresh collector configured by cfg.
func New(cfg gc.Config) (*Interpreter, error) {
	reg := gc.NewRegistry()
	if err := registerClasses(reg); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = &utils.NullLogger{}
	}
	in := &Interpreter{
		c:     gc.New(reg, cfg),
		log:   log,
		names: make(map[string]gc.Handle),
	}
	in.c.AddRootMarker(func(m *gc.Marker) {
		for _, name := range in.roots {
			m.Mark(in.names[name])
		}
	})
	return in, nil
}

// Collector exposes the interpreter's collector.
func (in *Interpreter) Collector() *gc.Collector { return in.c }

// Lookup returns the handle bound to name.
func (in *Interpreter) Lookup(name string) (gc.Handle, bool) {
	h, ok := in.names[name]
	return h, ok
}

// Run executes every line of r and stops at the first failing command.
func (in *Interpreter) Run(r io.Reader) (*Result, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := in.Exec(sc.Text()); err != nil {
			return in.result(), err
		}
	}
	if err := sc.Err(); err != nil {
		return in.result(), apperrors.Wrap(apperrors.CodeScriptError, "read script", err)
	}
	return in.result(), nil
}

func (in *Interpreter) result() *Result {
	return &Result{
		Lines:        in.line,
		Commands:     in.commands,
		Expectations: in.expects,
		TornDown:     append([]string(nil), in.torn...),
		Stats:        in.c.Stats(),
	}
}

// Exec runs a single script line. Errors carry the line number.
func (in *Interpreter) Exec(line string) error {
	in.line++
	args, err := shlex.Split(line)
	if err != nil {
		return in.fail(apperrors.CodeScriptError, "%v", err)
	}
	if len(args) == 0 {
		return nil
	}
	in.commands++
	if err := in.dispatch(args); err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			return in.fail(apperrors.CodeScriptError, "%s: %v", args[0], err)
		}
		return apperrors.Wrap(appErr.Code, fmt.Sprintf("line %d: %s", in.line, args[0]), err)
	}
	return nil
}

func (in *Interpreter) fail(code, format string, args ...interface{}) error {
	return apperrors.Newf(code, "line %d: "+format, append([]interface{}{in.line}, args...)...)
}

func usage(format string) error {
	return apperrors.New(apperrors.CodeScriptError, "usage: "+format)
}

type command struct {
	min, max int
	usage    string
	run      func(in *Interpreter, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"new":     {1, 2, "new <name> [node|leaf|res]", (*Interpreter).cmdNew},
		"alloc":   {1, 2, "alloc <count> [node|leaf|res]", (*Interpreter).cmdAlloc},
		"link":    {3, 3, "link <from> <field> <to>", (*Interpreter).cmdLink},
		"unlink":  {2, 2, "unlink <from> <field>", (*Interpreter).cmdUnlink},
		"weak":    {2, 2, "weak <from> <to>", (*Interpreter).cmdWeak},
		"root":    {1, 1, "root <name>", (*Interpreter).cmdRoot},
		"unroot":  {1, 1, "unroot <name>", (*Interpreter).cmdUnroot},
		"fix":     {1, 1, "fix <name>", (*Interpreter).cmdFix},
		"unfix":   {1, 1, "unfix <name>", (*Interpreter).cmdUnfix},
		"soft":    {1, 1, "soft <name>", (*Interpreter).cmdSoft},
		"unsoft":  {1, 1, "unsoft <name>", (*Interpreter).cmdUnsoft},
		"step":    {0, 1, "step [units]", (*Interpreter).cmdStep},
		"check":   {0, 0, "check", (*Interpreter).cmdCheck},
		"until":   {1, 1, "until <state>", (*Interpreter).cmdUntil},
		"fullgc":  {0, 0, "fullgc", (*Interpreter).cmdFullGC},
		"freeall": {0, 0, "freeall", (*Interpreter).cmdFreeAll},
		"release": {1, 1, "release <name>", (*Interpreter).cmdRelease},
		"destroy": {1, 1, "destroy <name>", (*Interpreter).cmdDestroy},
		"set":     {2, 2, "set <pause|stepmul> <value>", (*Interpreter).cmdSet},
		"verify":  {0, 0, "verify", (*Interpreter).cmdVerify},
		"expect":  {1, 3, "expect <what> [args]", (*Interpreter).cmdExpect},
		"try":     {2, -1, "try <ERROR_CODE> <command> [args]", (*Interpreter).cmdTry},
	}
}

// dispatch runs one command. Contract violations the collector raises as
// panics in debug mode come back as errors.
func (in *Interpreter) dispatch(args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			appErr, ok := r.(*apperrors.AppError)
			if !ok {
				panic(r)
			}
			err = appErr
		}
	}()
	cmd, ok := commands[args[0]]
	if !ok {
		return apperrors.Newf(apperrors.CodeScriptError, "unknown command %q", args[0])
	}
	n := len(args) - 1
	if n < cmd.min || (cmd.max >= 0 && n > cmd.max) {
		return usage(cmd.usage)
	}
	return cmd.run(in, args[1:])
}

func (in *Interpreter) handle(name string) (gc.Handle, error) {
	h, ok := in.names[name]
	if !ok {
		return gc.Nil, apperrors.Newf(apperrors.CodeScriptError, "unknown object %q", name)
	}
	return h, nil
}

func (in *Interpreter) create(class, name string) (gc.Handle, error) {
	switch class {
	case "", "node":
		h, n := gc.Create[Node](in.c)
		n.Name = name
		n.Refs = make(map[string]gc.Handle)
		return h, nil
	case "leaf":
		h, l := gc.Create[Leaf](in.c)
		l.Name = name
		return h, nil
	case "res":
		h, r := gc.Create[Resource](in.c)
		r.Name = name
		r.onDead = func(n string) { in.torn = append(in.torn, n) }
		return h, nil
	default:
		return gc.Nil, apperrors.Newf(apperrors.CodeScriptError, "unknown class %q", class)
	}
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (in *Interpreter) cmdNew(args []string) error {
	h, err := in.create(optional(args, 1), args[0])
	if err != nil {
		return err
	}
	in.names[args[0]] = h
	in.log.Debug("new %s = %s", args[0], h)
	return nil
}

func (in *Interpreter) cmdAlloc(args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return apperrors.Newf(apperrors.CodeScriptError, "bad count %q", args[0])
	}
	for i := 0; i < n; i++ {
		if _, err := in.create(optional(args, 1), ""); err != nil {
			return err
		}
	}
	return nil
}

// field returns the reference slot called field of the named object.
func (in *Interpreter) field(name, field string) (gc.Handle, func(gc.Handle), error) {
	h, err := in.handle(name)
	if err != nil {
		return gc.Nil, nil, err
	}
	if n := gc.Get[Node](in.c, h); n != nil {
		return h, func(to gc.Handle) {
			if to == gc.Nil {
				delete(n.Refs, field)
				return
			}
			n.Refs[field] = to
			in.c.WriteBarrier(h, to)
		}, nil
	}
	if r := gc.Get[Resource](in.c, h); r != nil {
		if field != "ref" {
			return gc.Nil, nil, apperrors.Newf(apperrors.CodeScriptError, "res has only the field ref")
		}
		return h, func(to gc.Handle) { in.c.Store(h, &r.Ref, to) }, nil
	}
	if !in.c.Valid(h) {
		return gc.Nil, nil, apperrors.Newf(apperrors.CodeInvalidHandle, "%s is gone", name)
	}
	return gc.Nil, nil, apperrors.Newf(apperrors.CodeScriptError, "%s holds no references", name)
}

func (in *Interpreter) cmdLink(args []string) error {
	to, err := in.handle(args[2])
	if err != nil {
		return err
	}
	_, set, err := in.field(args[0], args[1])
	if err != nil {
		return err
	}
	set(to)
	return nil
}

func (in *Interpreter) cmdUnlink(args []string) error {
	_, set, err := in.field(args[0], args[1])
	if err != nil {
		return err
	}
	set(gc.Nil)
	return nil
}

func (in *Interpreter) node(name string) (gc.Handle, *Node, error) {
	h, err := in.handle(name)
	if err != nil {
		return gc.Nil, nil, err
	}
	n := gc.Get[Node](in.c, h)
	if n == nil {
		return gc.Nil, nil, apperrors.Newf(apperrors.CodeScriptError, "%s is not a live node", name)
	}
	return h, n, nil
}

func (in *Interpreter) cmdWeak(args []string) error {
	h, n, err := in.node(args[0])
	if err != nil {
		return err
	}
	to, err := in.handle(args[1])
	if err != nil {
		return err
	}
	n.Weak.Set(in.c, h, to)
	return nil
}

func (in *Interpreter) cmdRoot(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	in.roots = append(in.roots, args[0])
	in.c.WriteBarrierRoot(h)
	return nil
}

func (in *Interpreter) cmdUnroot(args []string) error {
	for i, r := range in.roots {
		if r == args[0] {
			in.roots = append(in.roots[:i], in.roots[i+1:]...)
			return nil
		}
	}
	return apperrors.Newf(apperrors.CodeScriptError, "%s is not a root", args[0])
}

func (in *Interpreter) cmdFix(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	return in.c.Fix(h)
}

func (in *Interpreter) cmdUnfix(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	in.c.Unfix(h)
	return nil
}

func (in *Interpreter) cmdSoft(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	return in.c.AddSoftRoot(h)
}

func (in *Interpreter) cmdUnsoft(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	if !in.c.DelSoftRoot(h) {
		return apperrors.Newf(apperrors.CodeScriptError, "%s is not a soft root", args[0])
	}
	return nil
}

func (in *Interpreter) cmdStep(args []string) error {
	if len(args) == 0 {
		in.c.Step()
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return apperrors.Newf(apperrors.CodeScriptError, "bad unit count %q", args[0])
	}
	in.c.StepN(n)
	return nil
}

func (in *Interpreter) cmdCheck(args []string) error {
	in.c.CheckGC()
	return nil
}

const maxUntilSteps = 1 << 20

func (in *Interpreter) cmdUntil(args []string) error {
	want, ok := parseState(args[0])
	if !ok {
		return apperrors.Newf(apperrors.CodeScriptError, "unknown state %q", args[0])
	}
	for k := 0; in.c.State() != want; k++ {
		if k == maxUntilSteps {
			return apperrors.Newf(apperrors.CodeScriptError, "state %s never reached", want)
		}
		in.c.StepN(1)
	}
	return nil
}

func (in *Interpreter) cmdFullGC(args []string) error {
	in.c.FullGC()
	return nil
}

func (in *Interpreter) cmdFreeAll(args []string) error {
	in.c.FreeAll()
	in.roots = nil
	return nil
}

func (in *Interpreter) cmdRelease(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	return in.c.Release(h)
}

func (in *Interpreter) cmdDestroy(args []string) error {
	h, err := in.handle(args[0])
	if err != nil {
		return err
	}
	return in.c.Destroy(h)
}

func (in *Interpreter) cmdSet(args []string) error {
	v, err := strconv.Atoi(args[1])
	if err != nil {
		return apperrors.Newf(apperrors.CodeScriptError, "bad value %q", args[1])
	}
	switch args[0] {
	case "pause":
		in.c.SetPause(v)
	case "stepmul":
		in.c.SetStepMul(v)
	default:
		return apperrors.Newf(apperrors.CodeScriptError, "unknown parameter %q", args[0])
	}
	return nil
}

func (in *Interpreter) cmdVerify(args []string) error {
	_, err := in.c.Verify()
	return err
}

func (in *Interpreter) cmdTry(args []string) error {
	want := args[0]
	err := in.dispatch(args[1:])
	if err == nil {
		return apperrors.Newf(apperrors.CodeExpectation, "%s succeeded, want %s", args[1], want)
	}
	if got := apperrors.GetErrorCode(err); got != want {
		return apperrors.Newf(apperrors.CodeExpectation, "%s failed with %s, want %s: %v", args[1], got, want, err)
	}
	return nil
}

func parseState(s string) (gc.State, bool) {
	for st := gc.StatePause; st <= gc.StateFinalize; st++ {
		if strings.EqualFold(st.String(), s) {
			return st, true
		}
	}
	return 0, false
}

// Roots returns the names currently held in script root slots, sorted.
func (in *Interpreter) Roots() []string {
	out := append([]string(nil), in.roots...)
	sort.Strings(out)
	return out
}
