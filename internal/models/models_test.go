package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrationCancellable(t *testing.T) {
	for status := StatusBooked; status <= StatusCancelled; status++ {
		r := Registration{RegID: 1, Status: status}
		assert.Equal(t, status < 3, r.Cancellable(), "status %d", status)
	}
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "in-consultation", StatusLabel(StatusInConsultation))
	assert.Equal(t, "cancelled", StatusLabel(StatusCancelled))
	assert.Equal(t, "status-9", StatusLabel(9))
}

func TestScheduleQuotaLeft(t *testing.T) {
	assert.Equal(t, 3, Schedule{MaxQuota: 5, CurrentCount: 2}.QuotaLeft())
	assert.Equal(t, 0, Schedule{MaxQuota: 5, CurrentCount: 7}.QuotaLeft())
}
