package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWardRename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "retained ward drops segment",
			in:   "静岡県浜松市天竜区Y",
			want: []string{"静岡県浜松市Y"},
		},
		{
			name: "中区 becomes 中央区",
			in:   "静岡県浜松市中区元城町103-2",
			want: []string{"静岡県浜松市中央区元城町103-2", "静岡県浜松市元城町103-2"},
		},
		{
			name: "南区 becomes 中央区",
			in:   "浜松市南区江之島町",
			want: []string{"浜松市中央区江之島町", "浜松市江之島町"},
		},
		{
			name: "浜北区 becomes 浜名区",
			in:   "静岡県浜松市浜北区貴布祢291",
			want: []string{"静岡県浜松市浜名区貴布祢291", "静岡県浜松市貴布祢291"},
		},
		{
			name: "北区 三方原 town goes to 中央区 first",
			in:   "静岡県浜松市北区初生町1299",
			want: []string{"静岡県浜松市中央区初生町1299", "静岡県浜松市浜名区初生町1299", "静岡県浜松市初生町1299"},
		},
		{
			name: "北区 other town goes to 浜名区 first",
			in:   "静岡県浜松市北区細江町気賀",
			want: []string{"静岡県浜松市浜名区細江町気賀", "静岡県浜松市中央区細江町気賀", "静岡県浜松市細江町気賀"},
		},
		{
			name: "ward-less address",
			in:   "静岡県浜松市元城町103",
			want: []string{"静岡県浜松市中央区元城町103", "静岡県浜松市浜名区元城町103"},
		},
		{
			name: "not hamamatsu",
			in:   "東京都千代田区丸の内1-9-1",
			want: nil,
		},
		{
			name: "unknown ward left alone",
			in:   "静岡県浜松市謎区1",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewrite(t, WardRename, tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}
