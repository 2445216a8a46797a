// Package lifecycle names the staging areas an object moves through and the
// eligibility rule shared by the Gatekeeper and the Sweeper.
//
//	Delivered -> PendingSelection -> PendingValidations -> Validated
//	     \______________\___________________________\____-> Rejected
//
// The current stage of an object is recorded twice: in its key (the stage
// folder) and in its status tag.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fpang/datalake-ingestion/internal/registry"
)

// Stage folder names, also used as status tag values.
const (
	StageDelivered          = "Delivered"
	StagePendingSelection   = "PendingSelection"
	StagePendingValidations = "PendingValidations"
	StageValidated          = "Validated"
	StageRejected           = "Rejected"
)

const (
	// DefaultStatusTag is the object tag key holding the stage name.
	DefaultStatusTag = "ProcessStatus"
	// DefaultPlaceholderMarker marks fixture objects that are tagged but never relocated.
	DefaultPlaceholderMarker = "PlaceHolder"
	// RequiredExtension is the only accepted delivery file type.
	RequiredExtension = ".json"
)

var (
	ErrUnknownSourceID  = errors.New("unknown source id")
	ErrInvalidExtension = errors.New("invalid extension")
	ErrPlaceholder      = errors.New("placeholder object")
	ErrUnexpectedStage  = errors.New("unexpected stage")
)

// IsEligible checks that sourceID is registered and filename has the
// required extension. The source check runs first, so an unknown source
// with a bad extension reports ErrUnknownSourceID.
func IsEligible(sourceID, filename string, sources registry.Sources) error {
	if !sources.Contains(sourceID) {
		return fmt.Errorf("%w: %q", ErrUnknownSourceID, sourceID)
	}
	if !strings.HasSuffix(filename, RequiredExtension) {
		return fmt.Errorf("%w: %q (expected %s)", ErrInvalidExtension, filename, RequiredExtension)
	}
	return nil
}

// IsPlaceholder reports whether key contains marker. An empty marker matches nothing.
func IsPlaceholder(key, marker string) bool {
	return marker != "" && strings.Contains(key, marker)
}
