package goSession

import (
	"encoding/json"
	"errors"

	"github.com/MrEthical07/goSession/store"
)

// persistedProfile is the typed view of the profile envelope.
type persistedProfile struct {
	User          *User
	Branches      []Branch
	CurrentBranch *Branch
	AcademicYear  *AcademicYear
	AcademicYears []AcademicYear
}

func (p persistedProfile) empty() bool {
	return p.User == nil && p.Branches == nil && p.CurrentBranch == nil &&
		p.AcademicYear == nil && p.AcademicYears == nil
}

func profileFromState(s *AuthState) persistedProfile {
	return persistedProfile{
		User:          s.User,
		Branches:      s.Branches,
		CurrentBranch: s.CurrentBranch,
		AcademicYear:  s.AcademicYear,
		AcademicYears: s.AcademicYears,
	}
}

// decodeProfile returns every field of raw that parsed and the number of
// fields, or whole envelopes, that did not. Unparseable input is absent.
func decodeProfile(raw string) (persistedProfile, int) {
	env, err := store.DecodeEnvelope(raw)
	if err != nil {
		return persistedProfile{}, 1
	}

	var (
		p       persistedProfile
		corrupt int
	)
	if v, ok := env.Field(store.FieldUser); ok {
		if u, ok := parseUser(v); ok {
			p.User = u
		} else {
			corrupt++
		}
	}
	if v, ok := env.Field(store.FieldBranches); ok {
		if err := json.Unmarshal(v, &p.Branches); err != nil {
			p.Branches = nil
			corrupt++
		}
	}
	if v, ok := env.Field(store.FieldCurrentBranch); ok {
		var b Branch
		if err := json.Unmarshal(v, &b); err != nil {
			corrupt++
		} else {
			p.CurrentBranch = &b
		}
	}
	if v, ok := env.Field(store.FieldAcademicYear); ok {
		var y AcademicYear
		if err := json.Unmarshal(v, &y); err != nil {
			corrupt++
		} else {
			p.AcademicYear = &y
		}
	}
	if v, ok := env.Field(store.FieldAcademicYears); ok {
		if err := json.Unmarshal(v, &p.AcademicYears); err != nil {
			p.AcademicYears = nil
			corrupt++
		}
	}
	return p, corrupt
}

// parseUser rejects users without an id; such a record cannot back a session.
func parseUser(v json.RawMessage) (*User, bool) {
	var u User
	if err := json.Unmarshal(v, &u); err != nil || u.UserID == 0 {
		return nil, false
	}
	return &u, true
}

// reparseUser is the lenient second pass over the raw profile blob. It
// ignores the envelope version and also accepts an unwrapped state object.
func reparseUser(raw string) (*User, bool) {
	var wrapped struct {
		State map[string]json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.State != nil {
		if v, ok := wrapped.State[store.FieldUser]; ok {
			return parseUser(v)
		}
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &flat); err != nil {
		return nil, false
	}
	if v, ok := flat[store.FieldUser]; ok {
		return parseUser(v)
	}
	return nil, false
}

var errEncodeProfile = errors.New("encode profile")

func encodeProfile(p persistedProfile) (string, error) {
	state := make(map[string]json.RawMessage, 5)
	put := func(name string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Join(errEncodeProfile, err)
		}
		state[name] = data
		return nil
	}

	if p.User != nil {
		if err := put(store.FieldUser, p.User); err != nil {
			return "", err
		}
	}
	if p.Branches != nil {
		if err := put(store.FieldBranches, p.Branches); err != nil {
			return "", err
		}
	}
	if p.CurrentBranch != nil {
		if err := put(store.FieldCurrentBranch, p.CurrentBranch); err != nil {
			return "", err
		}
	}
	if p.AcademicYear != nil {
		if err := put(store.FieldAcademicYear, p.AcademicYear); err != nil {
			return "", err
		}
	}
	if p.AcademicYears != nil {
		if err := put(store.FieldAcademicYears, p.AcademicYears); err != nil {
			return "", err
		}
	}
	return store.EncodeEnvelope(state)
}
