package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedUsage struct {
	stats storage.UsageStats
	err   error
}

func (f fixedUsage) Usage() (storage.UsageStats, error) {
	return f.stats, f.err
}

func TestCheckDiskUsage(t *testing.T) {
	gib := uint64(1024 * 1024 * 1024)

	assert.NoError(t, checkDiskUsage(fixedUsage{stats: storage.UsageStats{TotalBytes: 100 * gib, FreeBytes: 6 * gib}}))
	assert.NoError(t, checkDiskUsage(fixedUsage{stats: storage.UsageStats{TotalBytes: 10 * gib, FreeBytes: 2 * gib}}))

	err := checkDiskUsage(fixedUsage{stats: storage.UsageStats{TotalBytes: 100 * gib, FreeBytes: 4 * gib}})
	assert.Equal(t, http.StatusInsufficientStorage, GetResponseCode(err))

	err = checkDiskUsage(fixedUsage{stats: storage.UsageStats{TotalBytes: 10 * gib, FreeBytes: gib / 2}})
	assert.Equal(t, http.StatusInsufficientStorage, GetResponseCode(err))

	err = checkDiskUsage(fixedUsage{err: errors.New("statfs failed")})
	assert.Equal(t, http.StatusInternalServerError, GetResponseCode(err))
}

func TestRegistryErrorCodes(t *testing.T) {
	for kind, code := range map[error]int{
		registry.ErrValidation:      http.StatusBadRequest,
		registry.ErrUnauthenticated: http.StatusUnauthorized,
		registry.ErrForbidden:       http.StatusForbidden,
		registry.ErrNotFound:        http.StatusNotFound,
		registry.ErrInvalidState:    http.StatusBadRequest,
		registry.ErrStorage:         http.StatusInternalServerError,
	} {
		assert.Equal(t, code, GetResponseCode(registryError(kind)), kind.Error())
	}
}

func TestParseOrderDate(t *testing.T) {
	date, err := parseOrderDate("")
	require.NoError(t, err)
	assert.Nil(t, date)

	for _, value := range []string{"2024-12-20", "2024-12-20T00:00", "2024-12-20T05:30:00+05:30"} {
		date, err := parseOrderDate(value)
		require.NoError(t, err, value)
		assert.True(t, date.Equal(time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)), value)
	}

	_, err = parseOrderDate("20/12/2024")
	assert.Equal(t, http.StatusBadRequest, GetResponseCode(err))
}

func TestCircularUpdateOrderDate(t *testing.T) {
	parse := func(body string) (registry.CircularUpdate, error) {
		var req updateCircularRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		return req.toUpdate()
	}

	update, err := parse(`{"title": "New"}`)
	require.NoError(t, err)
	assert.False(t, update.SetOrderDate)
	require.NotNil(t, update.Title)
	assert.Equal(t, "New", *update.Title)

	update, err = parse(`{"orderDate": null}`)
	require.NoError(t, err)
	assert.True(t, update.SetOrderDate)
	assert.Nil(t, update.OrderDate)

	update, err = parse(`{"orderDate": ""}`)
	require.NoError(t, err)
	assert.True(t, update.SetOrderDate)
	assert.Nil(t, update.OrderDate)

	update, err = parse(`{"orderDate": "2024-01-05"}`)
	require.NoError(t, err)
	require.NotNil(t, update.OrderDate)
	assert.Equal(t, 5, update.OrderDate.Day())

	_, err = parse(`{"orderDate": 12}`)
	assert.Equal(t, http.StatusBadRequest, GetResponseCode(err))
}
