package app

import (
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// BackpressureAction is what happens to a frame a transport could not take.
type BackpressureAction int

const (
	// KickMember closes the transport; its disconnect cascade follows.
	KickMember BackpressureAction = iota
	// DropFrame discards the frame and keeps the transport.
	DropFrame
)

func (a BackpressureAction) String() string {
	if a == DropFrame {
		return "drop"
	}
	return "kick"
}

// Policy decides what happens to a transport whose send buffer is full.
type Policy interface {
	OnBackPressure(tid domain.TransportID, conn core.SignalConnection) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.TransportID, core.SignalConnection) BackpressureAction {
	return KickMember
}
