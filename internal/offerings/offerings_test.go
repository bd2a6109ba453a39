package offerings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOfferings(t *testing.T) {
	catalog := Default()

	services := catalog.Services()
	require.Len(t, services, 7)
	for i, service := range services {
		assert.Equal(t, i+1, service.ID)
		assert.NotEmpty(t, service.Name)
		assert.NotEmpty(t, service.NameAr)
	}

	security, ok := catalog.Lookup(4)
	require.True(t, ok)
	assert.Equal(t, "Security & Surveillance", security.Name)
	assert.Equal(t, "أنظمة الأمن والمراقبة", security.NameAr)

	_, ok = catalog.Lookup(8)
	assert.False(t, ok)

	assert.Equal(t, []string{"/hero-camera.webp", "/hero-lock.jpg", "/hero-sensors.jpg"}, catalog.HeroFallback())
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":     "services: []",
		"duplicate": "services:\n  - {id: 1, name: A, nameAr: أ}\n  - {id: 1, name: B, nameAr: ب}\n",
		"nonpos":    "services:\n  - {id: 0, name: A, nameAr: أ}\n",
		"unnamed":   "services:\n  - {id: 2, name: A}\n",
		"malformed": "services: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseSortsByID(t *testing.T) {
	catalog, err := Parse([]byte("services:\n  - {id: 3, name: C, nameAr: ج}\n  - {id: 1, name: A, nameAr: أ}\n"))
	require.NoError(t, err)

	services := catalog.Services()
	require.Len(t, services, 2)
	assert.Equal(t, 1, services[0].ID)
	assert.Empty(t, catalog.HeroFallback())

	services[0].Name = "mutated"
	again, _ := catalog.Lookup(1)
	assert.Equal(t, "A", again.Name)
}
