package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-mapper/internal/models"
)

func TestUpsertIfAbsent(t *testing.T) {
	c := NewUserStatusCache()

	inserted := c.UpsertIfAbsent(models.UserStatus{AccountID: "A1", DeviceID: "D1"})
	require.True(t, inserted)
	assert.True(t, c.Contains("A1"))
	assert.Equal(t, 1, c.Len())
}

func TestUpsertIfAbsent_DuplicateLeavesRecordUntouched(t *testing.T) {
	c := NewUserStatusCache()
	c.UpsertIfAbsent(models.UserStatus{AccountID: "A1", DeviceID: "D1"})

	inserted := c.UpsertIfAbsent(models.UserStatus{AccountID: "A1", DeviceID: "D2", IsBanned: true})
	assert.False(t, inserted)
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get("A1")
	require.True(t, ok)
	assert.Equal(t, "D1", got.DeviceID)
	assert.False(t, got.IsBanned)
}

func TestUpsert_OverwritesAndKeepsPosition(t *testing.T) {
	c := NewUserStatusCache()
	c.Upsert(models.UserStatus{AccountID: "A1", DeviceID: "D1"})
	c.Upsert(models.UserStatus{AccountID: "A2", DeviceID: "D2"})
	c.Upsert(models.UserStatus{AccountID: "A1", DeviceID: "D9"})

	got, ok := c.Get("A1")
	require.True(t, ok)
	assert.Equal(t, "D9", got.DeviceID)

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "A1", all[0].AccountID)
	assert.Equal(t, "A2", all[1].AccountID)
}

func TestEmptyAccountIDIgnored(t *testing.T) {
	c := NewUserStatusCache()
	assert.False(t, c.UpsertIfAbsent(models.UserStatus{DeviceID: "D1"}))
	c.Upsert(models.UserStatus{DeviceID: "D1"})
	assert.Zero(t, c.Len())
}

func TestAll_InsertionOrderPreserved(t *testing.T) {
	c := NewUserStatusCache()
	for i := 0; i < 10; i++ {
		c.UpsertIfAbsent(models.UserStatus{AccountID: fmt.Sprintf("A%02d", i)})
	}

	all := c.All()
	require.Len(t, all, 10)
	for i, status := range all {
		assert.Equal(t, fmt.Sprintf("A%02d", i), status.AccountID)
	}
}

func TestAll_ReturnsSnapshotCopy(t *testing.T) {
	c := NewUserStatusCache()
	c.UpsertIfAbsent(models.UserStatus{AccountID: "A1"})

	snapshot := c.All()
	snapshot[0].AccountID = "mutated"

	got, ok := c.Get("A1")
	require.True(t, ok)
	assert.Equal(t, "A1", got.AccountID)
}

func TestRemove(t *testing.T) {
	c := NewUserStatusCache()
	c.UpsertIfAbsent(models.UserStatus{AccountID: "A1"})
	c.UpsertIfAbsent(models.UserStatus{AccountID: "A2"})
	c.UpsertIfAbsent(models.UserStatus{AccountID: "A3"})

	require.True(t, c.Remove("A2"))
	assert.False(t, c.Contains("A2"))
	assert.False(t, c.Remove("A2"))

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "A1", all[0].AccountID)
	assert.Equal(t, "A3", all[1].AccountID)

	// A removed id can be inserted again, now at the end of the order
	require.True(t, c.UpsertIfAbsent(models.UserStatus{AccountID: "A2"}))
	all = c.All()
	assert.Equal(t, "A2", all[2].AccountID)
}
