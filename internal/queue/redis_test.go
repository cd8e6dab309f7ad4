package queue

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

func TestQuarantineRecordsPayloadBeforeDroppingLease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	b := NewRedisBroker(client, time.Minute, nil)

	// Expectation order pins the invariant: the poison record exists
	// before the lease is released.
	mock.ExpectLPush(poisonKey, "not json").SetVal(1)
	mock.ExpectZRem(inflightKey, "not json").SetVal(1)

	b.quarantine(context.Background(), "not json")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
