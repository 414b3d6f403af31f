package thermal

// WarmBootSentinel is the initial committed-gain value used for a group
// reconstructed on warm boot. It never matches a real computed gain
// (which is always <= 0 and, per MinGain, rarely below -100 dB in
// practice), so the first iteration always performs a write.
const WarmBootSentinel = -999

// Group is an ordered collection of Speakers sharing one commanded gain.
// State machine: Initializing -> Nominal <-> Limiting -> (fatal).
type Group struct {
	Index       int
	Speakers    []*Speaker
	Gain        float32
	NominalEver bool
}

// NewGroup builds a Group for the given speakers, seeding the committed
// gain per the cold/warm-boot state machine rule: cold boot commits 0 dB
// immediately, warm boot starts from WarmBootSentinel to force a first
// write once real data is available.
func NewGroup(index int, speakers []*Speaker, coldBoot bool) *Group {
	g := &Group{Index: index, Speakers: speakers}
	if coldBoot {
		g.Gain = 0
		g.NominalEver = true
	} else {
		g.Gain = WarmBootSentinel
	}
	return g
}

// ComputeGain runs the thermal model for every member speaker against the
// shared capture frame and returns the most negative (most restrictive)
// resulting gain.
func (g *Group) ComputeGain(frame []int16, sampleRate int) (float32, error) {
	min := float32(0)
	for idx, s := range g.Speakers {
		gain, err := s.RunModel(frame, sampleRate)
		if err != nil {
			return 0, err
		}
		if idx == 0 || gain < min {
			min = gain
		}
	}
	return min, nil
}

// Commit writes gainDB to every speaker in the group, updates the group's
// last-committed gain, and tracks whether the group has ever been nominal
// (used by the --max-reduction debug aid).
func (g *Group) Commit(gainDB float32) error {
	for _, s := range g.Speakers {
		if err := s.Update(gainDB); err != nil {
			return err
		}
	}
	g.Gain = gainDB
	if gainDB == 0 {
		g.NominalEver = true
	}
	return nil
}

// SkipAll advances every member speaker's thermal state by timeSeconds of
// zero-power input, used on scheduling-gap recovery.
func (g *Group) SkipAll(timeSeconds float64) {
	for _, s := range g.Speakers {
		s.SkipModel(timeSeconds)
	}
}

// State reports the group's coarse operating state.
func (g *Group) State() string {
	switch {
	case g.Gain == WarmBootSentinel:
		return "Initializing"
	case g.Gain == 0:
		return "Nominal"
	default:
		return "Limiting"
	}
}
