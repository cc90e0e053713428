package ipmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFanSDR(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Reading
	}{
		{
			name: "elist",
			in: `Fan1 RPM         | 30h | ok  |  7.1 | 3600 RPM
Inlet Temp       | 04h | ok  |  7.1 | 22 degrees C
FAN 2            | 31h | ok  |  7.1 | 2040.00 RPM`,
			want: []Reading{{FanID: "Fan1", RPM: 3600}, {FanID: "FAN 2", RPM: 2040}},
		},
		{name: "empty", in: "", want: nil},
		{name: "no reading", in: "Fan1 RPM | 30h | ns | 7.1 | No Reading", want: nil},
		{name: "garbage", in: "Error: no data\n|||", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFanSDR(tt.in))
		})
	}
}
