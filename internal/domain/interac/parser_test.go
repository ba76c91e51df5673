package interac

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func TestParse_ReceivedForm(t *testing.T) {
	tests := []struct {
		name       string
		subject    string
		wantName   string
		wantAmount string
	}{
		{
			name:       "amount with space after comma",
			subject:    "Virement Interac : Vous avez reçu 50, 00 $ de SAMUEL TURBIDE et ce montant a été déposé dans votre compte.",
			wantName:   "SAMUEL TURBIDE",
			wantAmount: "50.00",
		},
		{
			name:       "compact amount",
			subject:    "Virement Interac : Vous avez reçu 98,00 $ de Steven Bélanger et ce montant a été déposé.",
			wantName:   "Steven Bélanger",
			wantAmount: "98.00",
		},
		{
			name:       "thousands separated by space",
			subject:    "Virement Interac : Vous avez reçu 1 234,56 $ de JEAN BELANGER et ce montant a été déposé.",
			wantName:   "JEAN BELANGER",
			wantAmount: "1234.56",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.subject, testDate)
			require.NoError(t, err)

			assert.Equal(t, tt.wantName, got.SenderName)
			want, _ := decimal.NewFromString(tt.wantAmount)
			assert.True(t, got.Amount.Equal(want), "amount %s != %s", got.Amount, want)
			assert.Equal(t, testDate, got.ReceivedAt)
		})
	}
}

func TestParse_SentForm(t *testing.T) {
	got, err := Parse("Virement Interac : Remi Methot vous a envoyé 15,00 $", testDate)
	require.NoError(t, err)

	assert.Equal(t, "Remi Methot", got.SenderName)
	assert.True(t, got.Amount.Equal(decimal.NewFromFloat(15.00)))
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		subject string
	}{
		{"unrelated subject", "Re: facture du mois"},
		{"integer amount without decimal form", "Virement Interac : Vous avez reçu 98 $ de SAMUEL TURBIDE et ce montant a été déposé."},
		{"missing name anchor", "Virement Interac : Vous avez reçu 98,00 $"},
		{"empty subject", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.subject, testDate)
			require.Error(t, err)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestParse_DateNormalizedToUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2025, 1, 15, 5, 0, 0, 0, est)

	got, err := Parse("Virement Interac : Vous avez reçu 50,00 $ de SAMUEL TURBIDE et ce montant a été déposé.", local)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, got.ReceivedAt.Location())
	assert.True(t, got.ReceivedAt.Equal(local))
}

func TestSubjectMatches(t *testing.T) {
	assert.True(t, SubjectMatches("Virement Interac : Vous avez reçu…", "Virement Interac :"))
	assert.True(t, SubjectMatches("VIREMENT INTERAC : Vous avez reçu…", "virement interac :"))
	assert.False(t, SubjectMatches("Re: Virement Interac :", "Virement Interac :"))
	assert.False(t, SubjectMatches("", "Virement Interac :"))
}

func TestSenderMatches(t *testing.T) {
	assert.True(t, SenderMatches("notify@payments.interac.ca", "notify@payments.interac.ca"))
	assert.True(t, SenderMatches("Notify@Payments.Interac.CA", "notify@payments.interac.ca"))
	assert.False(t, SenderMatches("spoof@example.com", "notify@payments.interac.ca"))
}
