// Package control is the typed facade over individually named control
// elements exposed by the audio subsystem: read integer, write integer, set
// boolean, convert between raw integer and decibels using a provider's TLV
// mapping, and lock a knob for the daemon's lifetime.
//
// The package defines the contract (the Backend interface) and a thin
// Element record built on top of it; the one hardware binding lives in
// alsa.go behind the same interface, so everything above it can run
// against an in-memory fake.
package control

import "github.com/doismellburning/speakersafetyd/internal/faults"

// Backend is the minimal capability surface a concrete audio-control
// transport must provide. The production implementation is ALSABackend in
// alsa.go; tests supply in-memory fakes. The supervisor and its components
// only ever see this interface.
type Backend interface {
	// Open resolves a named control element, returning an opaque handle.
	Open(name string) (Handle, error)
	// Lock takes exclusive ownership of the element for the process
	// lifetime; no other process may change it afterward.
	Lock(h Handle) error
	// ReadInt reads the element's current raw integer value.
	ReadInt(h Handle) (int, error)
	// WriteInt writes a raw integer value to the element.
	WriteInt(h Handle, v int) error
	// ReadBool reads the element's current boolean value.
	ReadBool(h Handle) (bool, error)
	// WriteBool writes a boolean value to the element.
	WriteBool(h Handle, v bool) error
	// DBRange returns the element's usable [min, max] range in raw
	// integer units, as reported by the driver.
	DBRange(h Handle) (min, max int, err error)
	// IntToDB converts a raw integer to decibels using the element's TLV
	// scale.
	IntToDB(h Handle, v int) (float32, error)
	// DBToInt converts decibels to the nearest representable raw integer
	// using the element's TLV scale.
	DBToInt(h Handle, db float32) (int, error)
}

// Handle is an opaque reference to an open control element, as returned by
// a Backend. Its concrete type is backend-defined.
type Handle interface{}

// Element is a named, opened, optionally locked control knob.
type Element struct {
	Name    string
	backend Backend
	handle  Handle
	locked  bool
}

// Open resolves name against backend, returning a usable Element. Any
// failure here is a ControlFault; failure to open any knob is fatal to
// the caller.
func Open(backend Backend, name string) (*Element, error) {
	h, err := backend.Open(name)
	if err != nil {
		return nil, faults.Wrap(faults.ControlFault, "open "+name, err)
	}
	return &Element{Name: name, backend: backend, handle: h}, nil
}

// Lock takes exclusive ownership of the element. Idempotent: calling Lock
// twice is a no-op on the second call.
func (e *Element) Lock() error {
	if e.locked {
		return nil
	}
	if err := e.backend.Lock(e.handle); err != nil {
		return faults.Wrap(faults.ControlFault, "lock "+e.Name, err)
	}
	e.locked = true
	return nil
}

// ReadInt reads the current raw integer value.
func (e *Element) ReadInt() (int, error) {
	v, err := e.backend.ReadInt(e.handle)
	if err != nil {
		return 0, faults.Wrap(faults.ControlFault, "read "+e.Name, err)
	}
	return v, nil
}

// WriteInt writes a raw integer value.
func (e *Element) WriteInt(v int) error {
	if err := e.backend.WriteInt(e.handle, v); err != nil {
		return faults.Wrap(faults.ControlFault, "write "+e.Name, err)
	}
	return nil
}

// ReadBool reads the current boolean value.
func (e *Element) ReadBool() (bool, error) {
	v, err := e.backend.ReadBool(e.handle)
	if err != nil {
		return false, faults.Wrap(faults.ControlFault, "read "+e.Name, err)
	}
	return v, nil
}

// WriteBool writes a boolean value.
func (e *Element) WriteBool(v bool) error {
	if err := e.backend.WriteBool(e.handle, v); err != nil {
		return faults.Wrap(faults.ControlFault, "write "+e.Name, err)
	}
	return nil
}

// SetBoolChecked writes v and reads it back, failing if the driver didn't
// actually take the value. Used by the mixer for the VSENSE/ISENSE enable
// switches.
func (e *Element) SetBoolChecked(v bool) error {
	if err := e.WriteBool(v); err != nil {
		return err
	}
	got, err := e.ReadBool()
	if err != nil {
		return err
	}
	if got != v {
		return faults.New(faults.ControlFault, e.Name+" did not take written value")
	}
	return nil
}

// DBRange returns the element's usable raw-integer range.
func (e *Element) DBRange() (min, max int, err error) {
	min, max, err = e.backend.DBRange(e.handle)
	if err != nil {
		return 0, 0, faults.Wrap(faults.ControlFault, "query range "+e.Name, err)
	}
	return min, max, nil
}

// IntToDB converts a raw integer to decibels.
func (e *Element) IntToDB(v int) (float32, error) {
	db, err := e.backend.IntToDB(e.handle, v)
	if err != nil {
		return 0, faults.Wrap(faults.ControlFault, "int-to-db "+e.Name, err)
	}
	return db, nil
}

// DBToInt converts decibels to the nearest representable raw integer.
func (e *Element) DBToInt(db float32) (int, error) {
	v, err := e.backend.DBToInt(e.handle, db)
	if err != nil {
		return 0, faults.Wrap(faults.ControlFault, "db-to-int "+e.Name, err)
	}
	return v, nil
}

// ReadDB is a convenience wrapper combining ReadInt and IntToDB.
func (e *Element) ReadDB() (float32, error) {
	v, err := e.ReadInt()
	if err != nil {
		return 0, err
	}
	return e.IntToDB(v)
}

// WriteDB is a convenience wrapper combining DBToInt and WriteInt.
func (e *Element) WriteDB(db float32) error {
	v, err := e.DBToInt(db)
	if err != nil {
		return err
	}
	return e.WriteInt(v)
}
