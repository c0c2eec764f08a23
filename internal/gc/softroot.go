package gc

import apperrors "github.com/engine-gc/pkg/errors"

// AddSoftRoot pins the object from storage that is not itself a managed
// object. Entries are counted: each AddSoftRoot needs its own DelSoftRoot.
// Soft roots need no write barrier; they are rescanned every cycle.
func (c *Collector) AddSoftRoot(h Handle) error {
	i, s := c.resolve(h)
	if s == nil {
		return apperrors.Newf(apperrors.CodeInvalidHandle, "soft root %s: stale handle", h)
	}
	if s.flags&FlagEuthanizeMe != 0 || s.where != inObjects {
		return apperrors.Newf(apperrors.CodeInvalidInput, "soft root %s: object is dying", h)
	}
	c.softRoots = append(c.softRoots, h)
	s.flags |= FlagRooted
	if c.state == StatePropagate && c.isCandidate(s) {
		c.greyObject(i, s)
	}
	return nil
}

// DelSoftRoot removes one soft-root entry for h. It reports whether an entry
// was found.
func (c *Collector) DelSoftRoot(h Handle) bool {
	before := len(c.softRoots)
	c.softRoots = removeHandle(c.softRoots, h, false)
	if len(c.softRoots) == before {
		return false
	}
	for _, r := range c.softRoots {
		if r == h {
			return true
		}
	}
	if _, s := c.resolve(h); s != nil {
		s.flags &^= FlagRooted
	}
	return true
}

// SoftRoots returns a copy of the registry, one entry per registration.
func (c *Collector) SoftRoots() []Handle {
	out := make([]Handle, len(c.softRoots))
	copy(out, c.softRoots)
	return out
}
