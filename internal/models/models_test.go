package models

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDMatchesLegacyFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestLegacySequenceName(t *testing.T) {
	name := LegacySequenceName("customer_invoice_serial_number", "STORE1")
	assert.Equal(t, "customer_invoice_serial_number_for_store_STORE1", name)

	key, store, ok := ParseLegacySequenceName(name)
	require.True(t, ok)
	assert.Equal(t, "customer_invoice_serial_number", key)
	assert.Equal(t, "STORE1", store)

	for _, bad := range []string{"customer_invoice_serial_number", "_for_store_STORE1", "key_for_store_", ""} {
		_, _, ok := ParseLegacySequenceName(bad)
		assert.False(t, ok, bad)
	}
}

func TestRegistryCoversEveryRecordType(t *testing.T) {
	require.Len(t, RecordRegistry, len(AllRecordTypes))

	for _, rt := range AllRecordTypes {
		assert.True(t, rt.IsSyncable(), rt)

		rec, err := rt.New()
		require.NoError(t, err)
		assert.Equal(t, rt, rec.RecordType())

		back, ok := RecordTypeForTable(rt.LegacyTable())
		require.True(t, ok, rt)
		assert.Equal(t, rt, back)
	}

	_, err := RecordType("Sensor").New()
	assert.Error(t, err)
	assert.False(t, RecordType("Sensor").IsSyncable())

	_, ok := RecordTypeForTable("sensor")
	assert.False(t, ok)
}

func TestNilSafeGetters(t *testing.T) {
	var item *Item
	var name *Name
	assert.Empty(t, item.GetID())
	assert.Empty(t, item.GetName())
	assert.Empty(t, name.GetID())
}
