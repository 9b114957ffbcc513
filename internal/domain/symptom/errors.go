package symptom

import "errors"

var (
	ErrRecordNotFound = errors.New("symptom record not found")
)
