package referenceframe

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// OOBErrString is a string that all out of bounds errors contain, so that they can be checked for
// distinct from other errors.
const OOBErrString = "input out of bounds"

// JointLimitError reports a joint value outside its range.
type JointLimitError struct {
	Joint JointName
	Value float64
	Limit Limit
}

// NewJointLimitError returns an error for a joint value outside its range.
func NewJointLimitError(joint JointName, value float64, limit Limit) error {
	return &JointLimitError{Joint: joint, Value: value, Limit: limit}
}

func (e *JointLimitError) Error() string {
	return fmt.Sprintf("%s %.3f %s [%.1f, %.1f]", e.Joint, e.Value, OOBErrString, e.Limit.Min, e.Limit.Max)
}

// IsJointLimitError reports whether any error in the chain is an out of bounds error.
func IsJointLimitError(err error) bool {
	if err == nil {
		return false
	}
	var jle *JointLimitError
	return errors.As(err, &jle) || strings.Contains(err.Error(), OOBErrString)
}

// NewInvalidLimitError is used when a limit has a minimum above its maximum.
func NewInvalidLimitError(joint JointName, limit Limit) error {
	return errors.Errorf("joint %q has min %.2f greater than max %.2f", joint, limit.Min, limit.Max)
}

// NewUnknownJointError is used when a joint name is not part of the arm.
func NewUnknownJointError(name string) error {
	return errors.Errorf("unknown joint %q", name)
}
