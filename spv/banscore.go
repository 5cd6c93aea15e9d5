// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spv

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// Halflife defines the time (in seconds) by which the transient part
	// of the ban score decays to one half of its original value.
	Halflife = 60

	lambda = math.Ln2 / Halflife

	// Lifetime defines the maximum age of the transient part of the ban
	// score to be considered a non-zero score (in seconds).
	Lifetime = 1800

	// BanThreshold defines the maximum allowed ban score before
	// disconnecting misbehaving peers.
	BanThreshold = 100

	// WarnThreshold defines the ban score threshold after which warning
	// messages are emitted whenever the peer misbehaves.
	WarnThreshold = BanThreshold / 2
)

// dynamicBanScore provides dynamic ban scores consisting of a persistent and
// a decaying component.  The persistent score can be utilized to create
// simple additive banning policies, such as increasing the score on invalid
// headers or merkle proofs.
//
// The decaying score enables the creation of evasive logic which handles
// misbehaving peers (especially application layer DoS attacks) gracefully
// by disconnecting peers attempting various kinds of flooding.
// dynamicBanScore allows these two approaches to be used in tandem.
//
// Zero value: Values of type dynamicBanScore are immediately ready for use
// upon declaration.
type dynamicBanScore struct {
	lastUnix   int64
	transient  float64
	persistent uint32
	mtx        sync.Mutex
}

// String returns the ban score as a human-readable string.
func (s *dynamicBanScore) String() string {
	return fmt.Sprintf("persistent %v + transient %v at %v = %v as of now",
		s.persistent, s.transient, s.lastUnix, s.Int())
}

// Int returns the current ban score, the sum of the persistent and decaying
// scores.
//
// This function is safe for concurrent access.
func (s *dynamicBanScore) Int() uint32 {
	return s.int(time.Now())
}

// Increase increases both the persistent and decaying scores by the values
// passed as parameters.  The resulting score is returned.
//
// This function is safe for concurrent access.
func (s *dynamicBanScore) Increase(persistent, transient uint32) uint32 {
	s.mtx.Lock()
	r := s.increase(persistent, transient, time.Now())
	s.mtx.Unlock()
	return r
}

// Reset sets both persistent and decaying scores to zero.
//
// This function is safe for concurrent access.
func (s *dynamicBanScore) Reset() {
	s.mtx.Lock()
	s.persistent = 0
	s.transient = 0
	s.lastUnix = 0
	s.mtx.Unlock()
}

// int returns the ban score, the sum of the persistent and decaying scores
// at a given point in time.
//
// This function is safe for concurrent access.  It is intended to be used
// internally and during testing.
func (s *dynamicBanScore) int(t time.Time) uint32 {
	// reduce the amount of time the lock is held
	s.mtx.Lock()
	last := s.lastUnix
	tran := s.transient
	pers := s.persistent
	s.mtx.Unlock()

	dt := t.Unix() - last
	if tran < 1 || 0 > dt || Lifetime < dt {
		return pers
	}
	return pers + uint32(tran*math.Exp(-1.0*float64(dt)*lambda))
}

// increase increases the persistent, the decaying or both scores by the
// values passed as parameters.  The resulting score is calculated as if the
// action was carried out at the point in time represented by the third
// parameter.  The resulting score is returned.
//
// This function is not safe for concurrent access.
func (s *dynamicBanScore) increase(persistent, transient uint32, t time.Time) uint32 {
	s.persistent += persistent
	tu := t.Unix()
	dt := tu - s.lastUnix

	if transient > 0 {
		if Lifetime < dt {
			s.transient = 0
		} else if s.transient > 1 && 0 < dt {
			s.transient *= math.Exp(-1.0 * float64(dt) * lambda)
		}
		s.transient += float64(transient)
		s.lastUnix = tu
	}
	return s.persistent + uint32(s.transient)
}
