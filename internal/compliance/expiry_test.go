package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/coverdesk/internal/model"
)

func date(y int, m time.Month, d int) *model.Date {
	dt := model.NewDate(y, m, d)
	return &dt
}

func TestCheckExpiration(t *testing.T) {
	asOf := model.NewDate(2026, time.March, 15)

	tests := []struct {
		name       string
		effective  *model.Date
		expiration *model.Date
		window     int
		want       ExpiryState
	}{
		{"well within period", date(2026, time.January, 1), date(2026, time.December, 31), 30, ExpiryCurrent},
		{"expires exactly today is still current", date(2026, time.January, 1), date(2026, time.March, 15), 30, ExpiryExpiringSoon},
		{"expired yesterday", date(2025, time.March, 1), date(2026, time.March, 14), 30, ExpiryExpired},
		{"inside warning window", date(2026, time.January, 1), date(2026, time.April, 14), 30, ExpiryExpiringSoon},
		{"exactly on window edge", date(2026, time.January, 1), date(2026, time.April, 14), 30, ExpiryExpiringSoon},
		{"one day past window", date(2026, time.January, 1), date(2026, time.April, 15), 30, ExpiryCurrent},
		{"not yet effective", date(2026, time.April, 1), date(2027, time.April, 1), 30, ExpiryNotYetEffective},
		{"no effective date still checks expiry", nil, date(2026, time.December, 1), 30, ExpiryCurrent},
		{"zero window uses default", date(2026, time.January, 1), date(2026, time.March, 20), 0, ExpiryExpiringSoon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := CheckExpiration(tt.effective, tt.expiration, asOf, tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestCheckExpiration_ExpiredOnlyDayAfter(t *testing.T) {
	exp := date(2026, time.March, 15)

	state, err := CheckExpiration(nil, exp, model.NewDate(2026, time.March, 15), 30)
	require.NoError(t, err)
	assert.NotEqual(t, ExpiryExpired, state)

	state, err = CheckExpiration(nil, exp, model.NewDate(2026, time.March, 16), 30)
	require.NoError(t, err)
	assert.Equal(t, ExpiryExpired, state)
}

func TestCheckExpiration_MissingExpirationIsError(t *testing.T) {
	_, err := CheckExpiration(date(2026, time.January, 1), nil, model.Today(), 30)
	require.ErrorIs(t, err, ErrMissingExpiration)

	var zero model.Date
	_, err = CheckExpiration(nil, &zero, model.Today(), 30)
	require.ErrorIs(t, err, ErrMissingExpiration)
}
