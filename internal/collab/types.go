package collab

import (
	"fmt"
	"strings"
)

// Status is the outcome carried by confirmations.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Role is the outcome of role discovery.
type Role int

const (
	// RoleNoPeer means no peer was found; the device runs standalone.
	RoleNoPeer Role = iota
	// RoleActingPrimary means the peer is absent but this device keeps the
	// primary role until it returns.
	RoleActingPrimary
	RolePrimary
	RoleSecondary
)

var roleNames = map[Role]string{
	RoleNoPeer:        "no_peer",
	RoleActingPrimary: "acting_primary",
	RolePrimary:       "primary",
	RoleSecondary:     "secondary",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for r, n := range roleNames {
		if n == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// ParamSet selects a named advertising parameter set.
type ParamSet string

const (
	ParamsFast     ParamSet = "fast"
	ParamsSlow     ParamSet = "slow"
	ParamsIdentify ParamSet = "identify"
)

// ProfileSet is a set of profile flags.
type ProfileSet uint8

const (
	ProfileA2DP ProfileSet = 1 << iota
	ProfileHFP
	ProfileAVRCP
	ProfileMirror
)

var profileNames = []struct {
	p    ProfileSet
	name string
}{
	{ProfileA2DP, "a2dp"},
	{ProfileHFP, "hfp"},
	{ProfileAVRCP, "avrcp"},
	{ProfileMirror, "mirror"},
}

// Has reports whether every flag of p is in s.
func (s ProfileSet) Has(p ProfileSet) bool { return s&p == p }

// Without clears the flags of p.
func (s ProfileSet) Without(p ProfileSet) ProfileSet { return s &^ p }

// Members returns the single-flag members of s.
func (s ProfileSet) Members() []ProfileSet {
	var out []ProfileSet
	for _, pn := range profileNames {
		if s&pn.p != 0 {
			out = append(out, pn.p)
		}
	}
	return out
}

// Names returns the flag names of s.
func (s ProfileSet) Names() []string {
	var out []string
	for _, pn := range profileNames {
		if s&pn.p != 0 {
			out = append(out, pn.name)
		}
	}
	return out
}

func (s ProfileSet) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}

// ParseProfiles builds a set from flag names.
func ParseProfiles(names []string) (ProfileSet, error) {
	var s ProfileSet
	for _, n := range names {
		found := false
		for _, pn := range profileNames {
			if pn.name == n {
				s |= pn.p
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown profile %q", n)
		}
	}
	return s, nil
}
