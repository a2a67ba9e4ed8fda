// ============================================================================
// sysmasterd Unit Lifecycle
// ============================================================================
//
// Package: internal/lifecycle
// File: emergency.go
// Purpose: Emergency action decision from spec §4.4 - given a unit's three
//          configured reactions and which one just triggered, decide what
//          the core should do. This package only decides;
//          internal/daemon.Manager.TriggerEmergency receives the resolved
//          action and logs it without rebooting, powering off or exiting.
//
// ============================================================================

package lifecycle

import "github.com/ChuLiYu/sysmasterd/pkg/unit"

// Trigger is which of a unit's three emergency reactions fired.
type Trigger string

const (
	TriggerSuccess    Trigger = "success"
	TriggerFailure    Trigger = "failure"
	TriggerStartLimit Trigger = "start-limit"
)

// ResolveEmergencyAction picks the configured action for trigger, or
// ActionNone if the unit didn't configure one for that trigger.
func ResolveEmergencyAction(actions unit.EmergencyActions, trigger Trigger) unit.EmergencyAction {
	switch trigger {
	case TriggerSuccess:
		return orNone(actions.Success)
	case TriggerFailure:
		return orNone(actions.Failure)
	case TriggerStartLimit:
		return orNone(actions.StartLimit)
	default:
		return unit.ActionNone
	}
}

func orNone(a unit.EmergencyAction) unit.EmergencyAction {
	if a == "" {
		return unit.ActionNone
	}
	return a
}

// IsReboot, IsPoweroff, IsExit classify an action for the spawner, which
// cares whether it must force/immediate in addition to the broad category.
func IsReboot(a unit.EmergencyAction) bool {
	switch a {
	case unit.ActionReboot, unit.ActionRebootForce, unit.ActionRebootImmediate:
		return true
	default:
		return false
	}
}

func IsPoweroff(a unit.EmergencyAction) bool {
	switch a {
	case unit.ActionPoweroff, unit.ActionPoweroffForce, unit.ActionPoweroffImmediate:
		return true
	default:
		return false
	}
}

func IsExit(a unit.EmergencyAction) bool {
	switch a {
	case unit.ActionExit, unit.ActionExitForce:
		return true
	default:
		return false
	}
}

// IsImmediate reports whether a skips graceful shutdown entirely.
func IsImmediate(a unit.EmergencyAction) bool {
	switch a {
	case unit.ActionRebootImmediate, unit.ActionPoweroffImmediate:
		return true
	default:
		return false
	}
}

// IsForce reports whether a skips unmounting/other cleanup but still syncs.
func IsForce(a unit.EmergencyAction) bool {
	switch a {
	case unit.ActionRebootForce, unit.ActionPoweroffForce, unit.ActionExitForce:
		return true
	default:
		return false
	}
}
