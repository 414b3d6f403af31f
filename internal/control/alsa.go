//go:build linux

// Production Backend: a thin ioctl binding against the Linux ALSA control
// API (/dev/snd/controlCN). This is the one place the package binds to a
// real transport; Element, Mixer, and everything above depend only on the
// Backend interface. Structs here mirror struct
// snd_ctl_elem_id/_info/_value/snd_ctl_tlv from <sound/asound.h>
// field-for-field, sized for amd64/arm64 longs.
package control

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/doismellburning/speakersafetyd/internal/faults"
)

// DefaultDevice is the control device for sound card 0, the common case on
// laptop-class hardware with a single onboard amplifier.
const DefaultDevice = "/dev/snd/controlC0"

const sndCtlIfaceMixer = 2 // SNDRV_CTL_ELEM_IFACE_MIXER

// SNDRV_CTL_TLVT_DB_SCALE, the TLV type this daemon's volume/amp-gain
// controls are expected to report (a linear dB-per-step mapping).
const sndCtlTlvDBScale = 1

// elemID mirrors struct snd_ctl_elem_id.
type elemID struct {
	Numid     uint32
	Iface     int32
	Device    uint32
	Subdevice uint32
	Name      [44]byte
	Index     uint32
}

// elemInfo mirrors struct snd_ctl_elem_info. This daemon only ever
// addresses BOOLEAN and INTEGER elements, so only the integer
// min/max/step value-union members are named; the rest of the 128-byte
// union, the dimension shorts, and the trailing reserved bytes are kept as
// opaque padding sized to match the real struct (272 bytes total).
type elemInfo struct {
	ID        elemID
	Type      int32
	Access    uint32
	Count     uint32
	Owner     int32
	Min       int64
	Max       int64
	Step      int64
	_pad      [128 - 24]byte
	_dimen    [8]byte
	_reserved [56]byte
}

// elemValue mirrors the fixed-size prefix of struct snd_ctl_elem_value this
// backend needs: the id plus one scalar integer/boolean slot. Every
// element this daemon touches has count == 1.
type elemValue struct {
	ID        elemID
	Indirect  uint32
	_pad      [4]byte
	Value     int64
	_rest     [1024 - 8]byte
	_reserved [128]byte
}

// ctlTLV is struct snd_ctl_tlv (numid + length) followed inline by a
// single dB-scale payload: the TLV header (type, length) and the two
// dB-scale data words (min centi-dB, step-and-mute-flag). The ioctl
// request number encodes only the two-word kernel struct; the payload
// rides in the caller-sized buffer behind it.
type ctlTLV struct {
	Numid       uint32
	Length      uint32
	Type        uint32
	DataLen     uint32
	MinCentiDB  int32
	StepAndMute int32
}

// sizeof(struct snd_ctl_tlv) as the kernel declares it: numid and length
// only, ahead of the flexible data array.
const tlvHeaderSize = 8

func ioc(dir, typ, nr, size uintptr) uintptr {
	const (
		dirShift  = 30
		typeShift = 8
		nrShift   = 0
		sizeShift = 16
	)
	return (dir << dirShift) | (typ << typeShift) | (nr << nrShift) | (size << sizeShift)
}

const (
	iocRead  = 2
	iocWrite = 1
)

var (
	elemInfoIoctl  = ioc(iocRead|iocWrite, 'U', 0x11, unsafe.Sizeof(elemInfo{}))
	elemReadIoctl  = ioc(iocRead|iocWrite, 'U', 0x12, unsafe.Sizeof(elemValue{}))
	elemWriteIoctl = ioc(iocRead|iocWrite, 'U', 0x13, unsafe.Sizeof(elemValue{}))
	elemLockIoctl  = ioc(iocWrite, 'U', 0x14, unsafe.Sizeof(elemID{}))
	tlvReadIoctl   = ioc(iocRead|iocWrite, 'U', 0x1a, tlvHeaderSize)
)

// alsaHandle is the concrete Handle this backend returns: the resolved
// element id plus its type/range, cached at Open time so later int/dB
// conversions don't need another ELEM_INFO round trip.
type alsaHandle struct {
	id  elemID
	typ int32
	min int64
	max int64
}

// ALSABackend implements Backend against one card's control device node.
type ALSABackend struct {
	fd int
}

// OpenALSABackend opens the default card's control device. Failure to open
// it is a ControlFault: without it, no knob on the system can be touched.
func OpenALSABackend() (Backend, error) {
	fd, err := unix.Open(DefaultDevice, unix.O_RDWR, 0)
	if err != nil {
		return nil, faults.Wrap(faults.ControlFault, "open "+DefaultDevice, err)
	}
	return &ALSABackend{fd: fd}, nil
}

func (b *ALSABackend) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Open resolves name to a control element. Per the ALSA control API, an
// ELEM_INFO query with numid == 0 and the id's name/iface set performs a
// name-based lookup rather than requiring a prior enumeration pass.
func (b *ALSABackend) Open(name string) (Handle, error) {
	var info elemInfo
	info.ID.Iface = sndCtlIfaceMixer
	copy(info.ID.Name[:], name)

	if err := b.ioctl(elemInfoIoctl, unsafe.Pointer(&info)); err != nil {
		return nil, fmt.Errorf("no such control element %q: %w", name, err)
	}

	return &alsaHandle{id: info.ID, typ: info.Type, min: info.Min, max: info.Max}, nil
}

func (b *ALSABackend) Lock(h Handle) error {
	hh := h.(*alsaHandle)
	id := hh.id
	if err := b.ioctl(elemLockIoctl, unsafe.Pointer(&id)); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	return nil
}

func (b *ALSABackend) ReadInt(h Handle) (int, error) {
	hh := h.(*alsaHandle)
	var v elemValue
	v.ID = hh.id
	if err := b.ioctl(elemReadIoctl, unsafe.Pointer(&v)); err != nil {
		return 0, err
	}
	return int(v.Value), nil
}

func (b *ALSABackend) WriteInt(h Handle, val int) error {
	hh := h.(*alsaHandle)
	var v elemValue
	v.ID = hh.id
	v.Value = int64(val)
	return b.ioctl(elemWriteIoctl, unsafe.Pointer(&v))
}

func (b *ALSABackend) ReadBool(h Handle) (bool, error) {
	v, err := b.ReadInt(h)
	return v != 0, err
}

func (b *ALSABackend) WriteBool(h Handle, v bool) error {
	i := 0
	if v {
		i = 1
	}
	return b.WriteInt(h, i)
}

func (b *ALSABackend) DBRange(h Handle) (min, max int, err error) {
	hh := h.(*alsaHandle)
	return int(hh.min), int(hh.max), nil
}

func (b *ALSABackend) dbScale(numid uint32) (minCentiDB, stepCentiDB int32, err error) {
	var t ctlTLV
	t.Numid = numid
	t.Length = uint32(unsafe.Sizeof(ctlTLV{}) - tlvHeaderSize)

	if err := b.ioctl(tlvReadIoctl, unsafe.Pointer(&t)); err != nil {
		return 0, 0, fmt.Errorf("tlv read: %w", err)
	}
	if t.Type != sndCtlTlvDBScale {
		return 0, 0, fmt.Errorf("control numid %d: unsupported TLV type %d", numid, t.Type)
	}

	return t.MinCentiDB, t.StepAndMute & 0xffff, nil
}

// IntToDB converts a raw integer to decibels using the element's dB-scale
// TLV; the mapping always comes from the driver, never a hardcoded curve.
func (b *ALSABackend) IntToDB(h Handle, v int) (float32, error) {
	hh := h.(*alsaHandle)
	minCentiDB, stepCentiDB, err := b.dbScale(hh.id.Numid)
	if err != nil {
		return 0, err
	}
	steps := int32(v) - int32(hh.min)
	return float32(minCentiDB+steps*stepCentiDB) / 100, nil
}

// DBToInt converts decibels to the nearest representable raw integer.
func (b *ALSABackend) DBToInt(h Handle, db float32) (int, error) {
	hh := h.(*alsaHandle)
	minCentiDB, stepCentiDB, err := b.dbScale(hh.id.Numid)
	if err != nil {
		return 0, err
	}
	if stepCentiDB == 0 {
		return int(hh.min), nil
	}
	centiDB := float64(db) * 100
	steps := int64(math.Round((centiDB - float64(minCentiDB)) / float64(stepCentiDB)))
	v := hh.min + steps
	if v < hh.min {
		v = hh.min
	} else if v > hh.max {
		v = hh.max
	}
	return int(v), nil
}
