package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentEnvelopeVersion is the schema version written by [EncodeEnvelope].
const CurrentEnvelopeVersion = 2

// ErrEnvelopeCorrupt is returned when a persisted profile blob cannot be parsed.
var ErrEnvelopeCorrupt = errors.New("profile envelope corrupt")

// ErrEnvelopeVersionUnsupported is returned for envelopes newer than this build.
var ErrEnvelopeVersionUnsupported = errors.New("unsupported profile envelope version")

// Profile state field names.
const (
	FieldUser          = "user"
	FieldBranches      = "branches"
	FieldCurrentBranch = "currentBranch"
	FieldAcademicYear  = "academicYear"
	FieldAcademicYears = "academicYears"
)

// Envelope is the persisted profile: a flat state object plus its schema
// version. Field values are kept raw so that one corrupt field does not
// invalidate its siblings.
type Envelope struct {
	State   map[string]json.RawMessage `json:"state"`
	Version int                        `json:"version"`
}

type wireEnvelope struct {
	State   map[string]json.RawMessage `json:"state"`
	Version *int                       `json:"version"`
}

type migration func(state map[string]json.RawMessage) error

// migrations[v] upgrades a version v state to v+1.
var migrations = map[int]migration{
	0: migrateV0ToV1,
	1: migrateV1ToV2,
}

// v0 envelopes predate the profile/session split: they carried the bearer
// token and a persisted isAuthenticated flag, and named the current branch
// selectedBranch.
func migrateV0ToV1(state map[string]json.RawMessage) error {
	for _, k := range []string{"isAuthenticated", "token", "tokenExpireAt", "refreshToken"} {
		delete(state, k)
	}
	if sel, ok := state["selectedBranch"]; ok {
		if _, has := state[FieldCurrentBranch]; !has {
			state[FieldCurrentBranch] = sel
		}
		delete(state, "selectedBranch")
	}
	return nil
}

// v2 adds the list of visible academic years.
func migrateV1ToV2(state map[string]json.RawMessage) error {
	if _, ok := state[FieldAcademicYears]; ok {
		return nil
	}
	year, ok := state[FieldAcademicYear]
	if !ok || isNull(year) {
		return nil
	}
	list := make([]byte, 0, len(year)+2)
	list = append(list, '[')
	list = append(list, year...)
	list = append(list, ']')
	state[FieldAcademicYears] = list
	return nil
}

// DecodeEnvelope parses raw and migrates it to [CurrentEnvelopeVersion].
// An envelope without a version field is treated as version 0.
func DecodeEnvelope(raw string) (*Envelope, error) {
	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}
	if w.State == nil {
		return nil, fmt.Errorf("%w: missing state", ErrEnvelopeCorrupt)
	}

	version := 0
	if w.Version != nil {
		version = *w.Version
	}
	if version < 0 {
		return nil, fmt.Errorf("%w: negative version %d", ErrEnvelopeCorrupt, version)
	}
	if version > CurrentEnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrEnvelopeVersionUnsupported, version)
	}

	for version < CurrentEnvelopeVersion {
		step, ok := migrations[version]
		if !ok {
			return nil, fmt.Errorf("%w: no migration from %d", ErrEnvelopeVersionUnsupported, version)
		}
		if err := step(w.State); err != nil {
			return nil, fmt.Errorf("%w: migrate v%d: %v", ErrEnvelopeCorrupt, version, err)
		}
		version++
	}

	return &Envelope{State: w.State, Version: version}, nil
}

// EncodeEnvelope serialises state at [CurrentEnvelopeVersion].
func EncodeEnvelope(state map[string]json.RawMessage) (string, error) {
	if state == nil {
		state = map[string]json.RawMessage{}
	}
	data, err := json.Marshal(Envelope{State: state, Version: CurrentEnvelopeVersion})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Field returns the raw value of name. Missing and JSON null both report false.
func (e *Envelope) Field(name string) (json.RawMessage, bool) {
	if e == nil || e.State == nil {
		return nil, false
	}
	v, ok := e.State[name]
	if !ok || isNull(v) {
		return nil, false
	}
	return v, true
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
