package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Zapatillas Niño", "zapatillas-nino"},
		{"  Café   con Leche! ", "cafe-con-leche"},
		{"Remera -- Talle XL", "remera-talle-xl"},
		{"Çocuk Ürünleri", "cocuk-urunleri"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Generate(tt.in))
		})
	}
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "mate-imperial-1a2b3c", WithSuffix("Mate Imperial", "1a2b3c", 64))
	assert.Equal(t, "mate-1a2b3c", WithSuffix("Mate Imperial", "1a2b3c", 12))
	assert.Equal(t, "1a2b3c", WithSuffix("???", "1a2b3c", 64))
	assert.Equal(t, "mate-imperial", WithSuffix("Mate Imperial", "", 64))
}
