// Package config loads product behaviour: timeouts, advertising parameter
// sets and the peer profile set.
//
// Behaviour is written in CUE and unified with an embedded schema that
// supplies defaults and constraints:
//
//	behaviour: {
//		timeouts: stop_ms: 2000
//		peer_profiles: ["a2dp", "hfp"]
//	}
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/duet/internal/collab"
)

//go:embed schema.cue
var schemaSource string

// Error codes carried by LoadError.
const (
	ErrCodeNotFound    = "C001" // Path not found
	ErrCodeLoadFailed  = "C002" // CUE load failed
	ErrCodeBuildFailed = "C003" // CUE build failed
	ErrCodeInvalid     = "C004" // Schema or concreteness violation
	ErrCodeDecode      = "C005" // Decoding into Go failed
)

// LoadError represents an error that occurred while loading behaviour.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Timeouts are in milliseconds.
type Timeouts struct {
	StopMS            int `json:"stop_ms"`
	FindRoleMS        int `json:"find_role_ms"`
	PairMS            int `json:"pair_ms"`
	ConnectProfilesMS int `json:"connect_profiles_ms"`
	ConnectableMS     int `json:"connectable_ms"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (t Timeouts) Stop() time.Duration            { return ms(t.StopMS) }
func (t Timeouts) FindRole() time.Duration        { return ms(t.FindRoleMS) }
func (t Timeouts) Pair() time.Duration            { return ms(t.PairMS) }
func (t Timeouts) ConnectProfiles() time.Duration { return ms(t.ConnectProfilesMS) }
func (t Timeouts) Connectable() time.Duration     { return ms(t.ConnectableMS) }

// Behaviour is the decoded product behaviour.
type Behaviour struct {
	Timeouts              Timeouts `json:"timeouts"`
	Advertising           string   `json:"advertising"`
	StandaloneAdvertising string   `json:"standalone_advertising"`
	PeerProfiles          []string `json:"peer_profiles"`
}

// Profiles returns PeerProfiles as a flag set.
func (b Behaviour) Profiles() collab.ProfileSet {
	// The schema restricts names to known profiles.
	s, _ := collab.ParseProfiles(b.PeerProfiles)
	return s
}

// AdvertisingParams returns the parameter set used while connectable.
func (b Behaviour) AdvertisingParams() collab.ParamSet {
	return collab.ParamSet(b.Advertising)
}

// StandaloneParams returns the parameter set used in standalone mode.
func (b Behaviour) StandaloneParams() collab.ParamSet {
	return collab.ParamSet(b.StandaloneAdvertising)
}

func schema(ctx *cue.Context) cue.Value {
	return ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
}

// Default returns the schema defaults.
func Default() Behaviour {
	ctx := cuecontext.New()
	b, err := decode(schema(ctx))
	if err != nil {
		panic(fmt.Sprintf("embedded behaviour schema: %v", err))
	}
	return b
}

// Load reads behaviour from a .cue file or a directory holding one CUE
// package, and applies schema defaults.
func Load(path string) (Behaviour, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Behaviour{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("behaviour not found: %s", path)}
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return Behaviour{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return Behaviour{}, fromCUE(ErrCodeLoadFailed, inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return Behaviour{}, fromCUE(ErrCodeBuildFailed, err)
	}

	return decode(schema(ctx).Unify(value))
}

func decode(v cue.Value) (Behaviour, error) {
	bv := v.LookupPath(cue.ParsePath("behaviour"))
	if err := bv.Validate(cue.Concrete(true)); err != nil {
		return Behaviour{}, fromCUE(ErrCodeInvalid, err)
	}
	var b Behaviour
	if err := bv.Decode(&b); err != nil {
		return Behaviour{}, fromCUE(ErrCodeDecode, err)
	}
	return b, nil
}

// fromCUE keeps the first error and its position.
func fromCUE(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}
