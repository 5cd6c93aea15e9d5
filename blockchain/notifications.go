// Copyright (c) 2024-2025 The INT developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/INT-devs/mobile-wallets/wire"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various chain events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTHeaderAccepted indicates a header has been accepted into the
	// header chain.  The notification data is a
	// *HeaderAcceptedNtfnsData.
	NTHeaderAccepted NotificationType = iota

	// NTReorganization indicates the best chain has changed to a branch
	// with more cumulative work.  The notification data is a
	// *ReorganizationNtfnsData.
	NTReorganization
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTHeaderAccepted: "NTHeaderAccepted",
	NTReorganization: "NTReorganization",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// HeaderAcceptedNtfnsData is the structure for data indicating information
// about an accepted header.
type HeaderAcceptedNtfnsData struct {
	// Header is the accepted header.
	Header wire.BlockHeader

	// Hash is the hash of the accepted header.
	Hash chainhash.Hash

	// Height is the height of the accepted header in the chain it
	// extends.  For side chain headers this is the height within the
	// side chain.
	Height int32

	// MainChain indicates whether the header extended the best chain.
	MainChain bool
}

// ReorganizationNtfnsData is the structure for data indicating information
// about a reorganization.
type ReorganizationNtfnsData struct {
	// OldHash and OldHeight identify the tip that was abandoned.
	OldHash   chainhash.Hash
	OldHeight int32

	// NewHash and NewHeight identify the new best tip.
	NewHash   chainhash.Hash
	NewHeight int32

	// DetachedHashes are the hashes removed from the best chain, ordered
	// from the old tip down to just above the fork point.
	DetachedHashes []chainhash.Hash

	// AttachedHashes are the hashes added to the best chain, ordered
	// from just above the fork point up to the new tip.
	AttachedHashes []chainhash.Hash
}

// Notification defines notification that is sent to the caller via the
// callback function provided during the call to New and consists of a
// notification type as well as associated data that depends on the type as
// follows:
//
//   - NTHeaderAccepted:  *HeaderAcceptedNtfnsData
//   - NTReorganization:  *ReorganizationNtfnsData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe to chain notifications.  Registers a callback to be executed when
// various events take place.
func (c *HeaderChain) Subscribe(callback NotificationCallback) {
	c.notificationsLock.Lock()
	c.notifications = append(c.notifications, callback)
	c.notificationsLock.Unlock()
}

// sendNotification sends a notification with the passed type and data if the
// caller requested notifications by providing a callback function in the call
// to New.
func (c *HeaderChain) sendNotification(typ NotificationType, data interface{}) {
	// Generate and send the notification.
	n := Notification{Type: typ, Data: data}
	c.notificationsLock.RLock()
	for _, callback := range c.notifications {
		callback(&n)
	}
	c.notificationsLock.RUnlock()
}
