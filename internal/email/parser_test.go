package email

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muscatlabs/bankfeed/internal/common"
)

const cardAlert = `
Dear Customer,
Your Debit card number 4837**** ****1518 has been utilised as follows:

Account number : xxxx0019
Description : 448311-JENAN TEA AIRP
Amount : OMR 0.1
Date/Time : 13 MAY 25 17:20
Transaction Country : Oman

Kind Regards,
Bank Muscat
`

const walletAlert = `
Dear customer,
You have received OMR 65.000 from ABDUL HAMID MOHAMED AL HADHRAMI in your a/c xxxx0019 using Mobile Payment services/mobile wallet.
Txn Id BMCT009962940757.
Kind regards,
Bank muscat
`

const creditAlert = `
Dear customer,
Your account xxxx0027 with 0442 - Br Maabela Ind has been credited by OMR 60.000 with value date 05/02/25.
Details of this transaction are provided below for your reference.
Transfer
Mazin contribution
MOOSA MOHAMMED KHASIB ALHADHRAMI
`

func TestParseCardAlert(t *testing.T) {
	alert, err := ParseAlert(cardAlert, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "xxxx0019", alert.AccountNumber)
	assert.Equal(t, "expense", alert.Direction)
	assert.Equal(t, "OMR", alert.Currency)
	assert.True(t, alert.Amount.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, "JENAN TEA AIRP", alert.Counterparty)
	assert.Equal(t, "Oman", alert.Country)

	assert.Equal(t, 2025, alert.ValueDate.Year())
	assert.Equal(t, 5, int(alert.ValueDate.Month()))
	assert.Equal(t, 13, alert.ValueDate.Day())
	assert.Equal(t, 17, alert.ValueDate.Hour())
	assert.Equal(t, 20, alert.ValueDate.Minute())
}

func TestParseWalletAlert(t *testing.T) {
	// Wallet alerts carry no date in the body; the header date stands in.
	received := time.Date(2025, 5, 13, 10, 30, 0, 0, time.UTC)
	alert, err := ParseAlert(walletAlert, received)
	require.NoError(t, err)

	assert.Equal(t, "xxxx0019", alert.AccountNumber)
	assert.Equal(t, "income", alert.Direction)
	assert.True(t, alert.Amount.Equal(decimal.RequireFromString("65.000")))
	assert.Equal(t, "ABDUL HAMID MOHAMED AL HADHRAMI", alert.Counterparty)
	assert.Equal(t, "BMCT009962940757", alert.Reference)
	assert.True(t, alert.ValueDate.Equal(received))
}

func TestParseCreditAlert(t *testing.T) {
	alert, err := ParseAlert(creditAlert, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "xxxx0027", alert.AccountNumber)
	assert.Equal(t, "income", alert.Direction)
	assert.True(t, alert.Amount.Equal(decimal.RequireFromString("60.000")))
	assert.Equal(t, "0442 - Br Maabela Ind", alert.Branch)
	assert.Equal(t, "MOOSA MOHAMMED KHASIB ALHADHRAMI", alert.Counterparty)

	// 05/02/25 is day first: 5 February, not 2 May.
	assert.Equal(t, 2025, alert.ValueDate.Year())
	assert.Equal(t, 2, int(alert.ValueDate.Month()))
	assert.Equal(t, 5, alert.ValueDate.Day())
}

func TestParseQuotedPrintableHTML(t *testing.T) {
	body := "<html><body>Dear customer,<br>Your account xxxx0027 has been credited by OMR 60.000 with value date=\r\n 05/02/25.<br>MOOSA MOHAMMED KHASIB ALHADHRAMI</body></html>"

	alert, err := ParseAlert(body, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "xxxx0027", alert.AccountNumber)
	assert.True(t, alert.Amount.Equal(decimal.RequireFromString("60.000")))
	assert.Equal(t, 5, alert.ValueDate.Day())
	assert.Equal(t, "MOOSA MOHAMMED KHASIB ALHADHRAMI", alert.Counterparty)
}

func TestParseAlertFailures(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		_, err := ParseAlert("", time.Time{})
		assert.ErrorIs(t, err, common.ErrUnparseableAmount)
	})

	t.Run("no amount", func(t *testing.T) {
		_, err := ParseAlert("Dear customer, your account xxxx0027 statement is ready.", time.Time{})
		assert.ErrorIs(t, err, common.ErrUnparseableAmount)
	})

	t.Run("no date anywhere", func(t *testing.T) {
		_, err := ParseAlert("Your account xxxx0027 has been credited by OMR 60.000 today.", time.Time{})
		assert.ErrorIs(t, err, common.ErrUnparseableDate)
	})
}

func TestCleanText(t *testing.T) {
	t.Run("soft breaks, escapes and entities", func(t *testing.T) {
		raw := "Dear cus=\r\ntomer,<br>Amount =3D OMR 1.000 &amp; fees"
		got := CleanText(raw)
		assert.Equal(t, "Dear customer,\nAmount = OMR 1.000 & fees", got)
	})

	t.Run("multi-byte escapes decode as UTF-8", func(t *testing.T) {
		// Each Arabic letter spans two =XX escapes.
		got := CleanText("received OMR 5.000 from =D8=A3=D8=AD=D9=85=D8=AF")
		assert.Equal(t, "received OMR 5.000 from أحمد", got)
	})
}
