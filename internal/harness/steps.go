package harness

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/collab/fake"
)

type startStep struct{}

type stopStep struct{}

type standaloneStep struct{}

type advanceStep struct {
	By time.Duration `mapstructure:"by"`
}

type notifyStep struct {
	Kind      string `mapstructure:"kind"`
	Status    string `mapstructure:"status"`
	Role      string `mapstructure:"role"`
	Profile   string `mapstructure:"profile"`
	Connected bool   `mapstructure:"connected"`
	Enabled   bool   `mapstructure:"enabled"`
}

// Expect checks the run at one point. Unset fields are not checked.
type Expect struct {
	State string `mapstructure:"state"`

	// Idle requires that no goal is active or pending.
	Idle bool `mapstructure:"idle"`

	// ActiveGoals lists every active goal, in any order.
	ActiveGoals []string `mapstructure:"active_goals"`

	// PendingGoals lists the pending queue in order.
	PendingGoals []string `mapstructure:"pending_goals"`

	// Messages are the kinds of every client message so far.
	Messages []string `mapstructure:"messages"`

	// LastMessage is the rendered most recent message, e.g.
	// "find_role_result {success primary}".
	LastMessage string `mapstructure:"last_message"`

	// Calls is the exact collaborator call log so far.
	Calls []string `mapstructure:"calls"`

	// Called maps operation names to call counts.
	Called map[string]int `mapstructure:"called"`

	Device *DeviceExpect `mapstructure:"device"`
}

// DeviceExpect checks earbud.State fields.
type DeviceExpect struct {
	Paired        *bool    `mapstructure:"paired"`
	Role          string   `mapstructure:"role"`
	PeerConnected *bool    `mapstructure:"peer_connected"`
	Profiles      []string `mapstructure:"profiles"`
	Advertising   *bool    `mapstructure:"advertising"`
	Standalone    *bool    `mapstructure:"standalone"`
	ShuttingDown  *bool    `mapstructure:"shutting_down"`
}

// decodeStep converts a step's argument map into its typed form.
func decodeStep(step Step) (any, error) {
	var target any
	switch step.Op {
	case OpStart:
		target = &startStep{}
	case OpStop:
		target = &stopStep{}
	case OpRequestStandalone:
		target = &standaloneStep{}
	case OpAdvance:
		target = &advanceStep{}
	case OpNotify:
		target = &notifyStep{}
	case OpExpect:
		target = &Expect{}
	default:
		return nil, fmt.Errorf("line %d: unknown operation %q", step.Line, step.Op)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      target,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(step.Args); err != nil {
		return nil, fmt.Errorf("line %d: %s: %w", step.Line, step.Op, err)
	}

	switch t := target.(type) {
	case *advanceStep:
		if t.By <= 0 {
			return nil, fmt.Errorf("line %d: advance: by must be positive", step.Line)
		}
	case *notifyStep:
		if _, err := t.notification(); err != nil {
			return nil, fmt.Errorf("line %d: notify: %w", step.Line, err)
		}
	}
	return target, nil
}

func parseStatus(s string) (collab.Status, error) {
	switch s {
	case "", "success":
		return collab.StatusSuccess, nil
	case "failure":
		return collab.StatusFailure, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

func parseRole(s string) (collab.Role, error) {
	if s == "" {
		return 0, fmt.Errorf("role is required")
	}
	return collab.ParseRole(s)
}

// notification builds the collaborator notification the step publishes.
func (n notifyStep) notification() (collab.Notification, error) {
	status, err := parseStatus(n.Status)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case "peer_connected":
		return collab.PeerConnected{}, nil
	case "peer_disconnected":
		return collab.PeerDisconnected{}, nil
	case "disconnect_all_confirm":
		return collab.DisconnectAllConfirm{Status: status}, nil
	case "role_changed", "role_result":
		role, err := parseRole(n.Role)
		if err != nil {
			return nil, err
		}
		if n.Kind == "role_changed" {
			return collab.RoleChanged{Role: role}, nil
		}
		return collab.RoleResult{Role: role}, nil
	case "advertising_confirm":
		return collab.AdvertisingConfirm{Enabled: n.Enabled, Status: status}, nil
	case "find_role_cancelled":
		return collab.FindRoleCancelled{}, nil
	case "pair_result":
		return collab.PairResult{Status: status}, nil
	case "pair_cancelled":
		return collab.PairCancelled{}, nil
	case "profile_confirm":
		p, err := collab.ParseProfiles([]string{n.Profile})
		if err != nil {
			return nil, err
		}
		return collab.ProfileConfirm{Profile: p, Connected: n.Connected, Status: status}, nil
	case "shutdown_prepare":
		return collab.ShutdownPrepare{}, nil
	case "":
		return nil, fmt.Errorf("kind is required")
	}
	return nil, fmt.Errorf("unknown notification kind %q", n.Kind)
}

var holdable = map[string]bool{
	fake.OpConnectPeer:        true,
	fake.OpDisconnectAll:      true,
	fake.OpAdvertisingEnable:  true,
	fake.OpAdvertisingDisable: true,
	fake.OpFindRole:           true,
	fake.OpCancelFindRole:     true,
	fake.OpPair:               true,
	fake.OpCancelPair:         true,
	fake.OpProfilesConnect:    true,
	fake.OpProfilesDisconnect: true,
}

// build configures fake collaborators on bus. A nil bus only validates.
func (c Collaborators) build(bus *collab.Bus) (*fake.Collaborators, error) {
	fc := fake.New(bus)
	fc.Role = collab.RolePrimary

	var err error
	if c.Role != "" {
		if fc.Role, err = collab.ParseRole(c.Role); err != nil {
			return nil, err
		}
	}
	if fc.PairStatus, err = parseStatus(c.PairStatus); err != nil {
		return nil, fmt.Errorf("pair_status: %w", err)
	}
	if fc.AdvertisingStatus, err = parseStatus(c.AdvertisingStatus); err != nil {
		return nil, fmt.Errorf("advertising_status: %w", err)
	}
	if fc.DisconnectStatus, err = parseStatus(c.DisconnectStatus); err != nil {
		return nil, fmt.Errorf("disconnect_status: %w", err)
	}
	if fc.FailProfiles, err = collab.ParseProfiles(c.FailProfiles); err != nil {
		return nil, fmt.Errorf("fail_profiles: %w", err)
	}
	for _, op := range c.Hold {
		if !holdable[op] {
			return nil, fmt.Errorf("hold: unknown operation %q", op)
		}
		fc.Hold[op] = true
	}
	return fc, nil
}
