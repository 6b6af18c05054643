package tftp

import "strconv"

const (
	OptBlksize = "blksize"
	OptTimeout = "timeout"
	OptTsize   = "tsize"

	MinBlksize = 8
	MaxBlksize = 65464

	MinTimeout = 1
	MaxTimeout = 255

	DefaultBlksize = 512
	DefaultTimeout = 5
)

// OptionSet is an ordered map from option name to value. Order is the
// sequence in which the peer listed the options; it is preserved because
// an echoed OACK must list only requested options, and the order is
// observable (for logging) but carries no protocol meaning.
type OptionSet struct {
	order  []string
	values map[string]uint64
}

// NewOptionSet returns an empty set ready for Set.
func NewOptionSet() OptionSet {
	return OptionSet{values: make(map[string]uint64)}
}

// Set records name=value, keeping the first occurrence if name repeats.
func (o *OptionSet) Set(name string, value uint64) {
	if o.values == nil {
		o.values = make(map[string]uint64)
	}

	if _, exists := o.values[name]; exists {
		return
	}

	o.order = append(o.order, name)
	o.values[name] = value
}

// Get returns the value for name and whether it was present.
func (o OptionSet) Get(name string) (uint64, bool) {
	v, ok := o.values[name]

	return v, ok
}

// Has reports whether name was listed.
func (o OptionSet) Has(name string) bool {
	_, ok := o.values[name]

	return ok
}

// Names returns option names in first-seen order.
func (o OptionSet) Names() []string {
	return o.order
}

// Len reports how many options are set.
func (o OptionSet) Len() int {
	return len(o.order)
}

// validBlksize reports whether v is a legal blksize value.
func validBlksize(v uint64) bool {
	return v >= MinBlksize && v <= MaxBlksize
}

// validTimeout reports whether v is a legal timeout value.
func validTimeout(v uint64) bool {
	return v >= MinTimeout && v <= MaxTimeout
}

// NegotiatedOptions is the effective session configuration after
// negotiation: either side's accepted blksize/timeout, plus tsize when
// one side reported it.
type NegotiatedOptions struct {
	Blksize int
	Timeout int
	Tsize   uint64
	HasTsize bool
}

// NegotiateServer computes the OACK the server should echo back to a
// client's offered options, given the file size relevant to a read
// transfer (ignored for writes). It returns the options to put in the
// OACK (a subset of offered, in offered order) and the session values to
// adopt. An out-of-range value fails with *OptionRejectedError and no
// OACK should be sent.
func NegotiateServer(offered OptionSet, isRead bool, fileSize uint64) (OptionSet, NegotiatedOptions, error) {
	ack := NewOptionSet()
	session := NegotiatedOptions{Blksize: DefaultBlksize, Timeout: DefaultTimeout}

	for _, name := range offered.Names() {
		v, _ := offered.Get(name)

		switch name {
		case OptBlksize:
			if !validBlksize(v) {
				return OptionSet{}, NegotiatedOptions{}, &OptionRejectedError{
					Reason: "blksize " + strconv.FormatUint(v, 10) + " out of range",
				}
			}

			session.Blksize = int(v)
			ack.Set(OptBlksize, v)
		case OptTimeout:
			if !validTimeout(v) {
				return OptionSet{}, NegotiatedOptions{}, &OptionRejectedError{
					Reason: "timeout " + strconv.FormatUint(v, 10) + " out of range",
				}
			}

			session.Timeout = int(v)
			ack.Set(OptTimeout, v)
		case OptTsize:
			var tsize uint64
			if isRead {
				tsize = fileSize
			} else {
				tsize = v
			}

			session.Tsize = tsize
			session.HasTsize = true
			ack.Set(OptTsize, tsize)
		}
	}

	return ack, session, nil
}

// NegotiateClient validates the server's OACK against what the client
// offered and computes the session values to adopt. Any option present
// in replied but absent from offered fails with *OptionRejectedError.
// Options the server omitted revert to protocol defaults.
func NegotiateClient(offered, replied OptionSet) (NegotiatedOptions, error) {
	session := NegotiatedOptions{Blksize: DefaultBlksize, Timeout: DefaultTimeout}

	for _, name := range replied.Names() {
		if !offered.Has(name) {
			return NegotiatedOptions{}, &OptionRejectedError{
				Reason: "server offered unsolicited option " + name,
			}
		}
	}

	if v, ok := replied.Get(OptBlksize); ok {
		want, _ := offered.Get(OptBlksize)
		if v > want || !validBlksize(v) {
			return NegotiatedOptions{}, &OptionRejectedError{
				Reason: "server blksize " + strconv.FormatUint(v, 10) + " not acceptable",
			}
		}

		session.Blksize = int(v)
	}

	if v, ok := replied.Get(OptTimeout); ok {
		want, _ := offered.Get(OptTimeout)
		if v != want || !validTimeout(v) {
			return NegotiatedOptions{}, &OptionRejectedError{
				Reason: "server timeout " + strconv.FormatUint(v, 10) + " not acceptable",
			}
		}

		session.Timeout = int(v)
	}

	if v, ok := replied.Get(OptTsize); ok {
		session.Tsize = v
		session.HasTsize = true
	}

	return session, nil
}
