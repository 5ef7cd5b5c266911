package models

import "time"

// SyncStatus is the outcome of the last synchronization pass.
type SyncStatus struct {
	Time           time.Time `json:"time"`
	ItemCount      int       `json:"itemCount"`
	TotalItemCount int       `json:"totalItemCount"`
	Message        string    `json:"message,omitempty"`
	Cause          string    `json:"cause,omitempty"`
}

func NewSuccessStatus(at time.Time, itemCount, totalItemCount int) SyncStatus {
	return SyncStatus{Time: at, ItemCount: itemCount, TotalItemCount: totalItemCount}
}

func NewFailureStatus(at time.Time, message string, cause error) SyncStatus {
	status := SyncStatus{Time: at, Message: message}
	if cause != nil {
		status.Cause = cause.Error()
	}
	return status
}

func (s SyncStatus) IsSuccess() bool {
	return s.Message == "" && s.Cause == ""
}
