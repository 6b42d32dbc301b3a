package ofx

import (
	"context"
	"strings"
	"testing"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/testutil"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240131093000[0:GMT]
<TRNAMT>2000.00
<FITID>2024013101
<NAME>CREDIT
<MEMO>ACME CORP PAYROLL
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectError   bool
	}{
		{name: "bank statement", ofxData: sampleBankOFX, expectedCount: 4},
		{name: "credit card statement", ofxData: sampleCreditCardOFX, expectedCount: 2},
		{name: "invalid OFX data", ofxData: "not an ofx file", expectError: true},
		{name: "empty input", ofxData: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns, err := NewParser().ParseFile(context.Background(), strings.NewReader(tt.ofxData))
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, txns, tt.expectedCount)
			for _, tx := range txns {
				assert.Empty(t, tx.ID, "the backend assigns ids")
				assert.Equal(t, model.SourceManual, tx.Source)
				assert.False(t, tx.Amount.IsNegative())
			}
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	txns, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, txns, 4)

	coffee := txns[0]
	assert.Equal(t, "STARBUCKS STORE #1234", coffee.Title)
	assert.True(t, coffee.Amount.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, TypeExpense, coffee.Type)
	assert.Equal(t, "2024-01-15", coffee.Date)
	assert.Equal(t, "12:00", coffee.Time)
	assert.Equal(t, "USD", coffee.OriginalCurrency)
	assert.Contains(t, coffee.Notes, "fitid 2024011501")

	check := txns[2]
	assert.True(t, check.Amount.Equal(decimal.RequireFromString("500")))
	assert.Contains(t, check.Notes, "check 1234")

	payroll := txns[3]
	assert.Equal(t, TypeIncome, payroll.Type)
	assert.Equal(t, "ACME CORP PAYROLL", payroll.Title, "generic names fall back to the memo")
	assert.Equal(t, "09:30", payroll.Time)
	assert.True(t, payroll.Amount.Equal(decimal.RequireFromString("2000")))
}

func TestParseCreditCardTransactions(t *testing.T) {
	stmts, err := NewParser().ParseStatements(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	stmt := stmts[0]
	assert.Equal(t, "4111111111111111", stmt.AccountID)
	assert.Equal(t, "USD", stmt.Currency)
	require.Len(t, stmt.Transactions, 2)
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", stmt.Transactions[0].Title)
	assert.Equal(t, "NETFLIX.COM", stmt.Transactions[1].Title)
	assert.Equal(t, TypeExpense, stmt.Transactions[1].Type)
}

func TestParseStatements_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().ParseStatements(ctx, strings.NewReader(sampleBankOFX))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreprocessOFX(t *testing.T) {
	p := NewParser()
	out := p.preprocessOFX("\n\n  <SEVERITY>Info</SEVERITY>\n<BANKTRANLIST\n")
	assert.True(t, strings.HasPrefix(out, "<SEVERITY>INFO</SEVERITY>"))
	assert.Contains(t, out, "<BANKTRANLIST>")
}

func TestExtractMerchantName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		memo     string
		expected string
	}{
		{name: "remove POS prefix", input: "POS PURCHASE TARGET T-1234", expected: "TARGET T-1234"},
		{name: "remove DEBIT CARD prefix", input: "DEBIT CARD PURCHASE SHELL OIL", expected: "SHELL OIL"},
		{name: "strip leading date", input: "01/15 CORNER BAKERY", expected: "CORNER BAKERY"},
		{name: "keep clean name", input: "Whole Foods Market", expected: "Whole Foods Market"},
		{name: "trim whitespace", input: "  Trader Joe's  ", expected: "Trader Joe's"},
		{name: "generic name uses memo", input: "PAYMENT", memo: "CITY WATER", expected: "CITY WATER"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgoTransaction(tt.input, tt.memo)
			assert.Equal(t, tt.expected, p.extractMerchantName(tx))
		})
	}
}

func TestMissing(t *testing.T) {
	txns, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)

	existing := []model.Transaction{txns[0], txns[1]}
	existing[0].ID = "server-1"

	missing := Missing(txns, existing)
	require.Len(t, missing, 2)
	assert.Equal(t, "CHECK #1234", missing[0].Title)

	again := Missing(append(txns, txns...), nil)
	assert.Len(t, again, 4, "duplicates within one file collapse")
}

func TestDedupKey(t *testing.T) {
	a := testutil.NewTransaction("a", testutil.WithTitle(" Coffee "), testutil.WithAmount("3.5"))
	b := testutil.NewTransaction("b", testutil.WithTitle("COFFEE"), testutil.WithAmount("3.50"))
	assert.Equal(t, DedupKey(a), DedupKey(b))

	c := testutil.NewTransaction("c", testutil.WithTitle("COFFEE"), testutil.WithAmount("3.51"))
	assert.NotEqual(t, DedupKey(a), DedupKey(c))
}

func TestGetAccounts(t *testing.T) {
	combined := strings.Replace(sampleBankOFX, "</BANKMSGSRSV1>\n</OFX>",
		"</BANKMSGSRSV1>\n"+creditCardBlock()+"</OFX>", 1)

	accounts, err := NewParser().GetAccounts(context.Background(), strings.NewReader(combined))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890", "4111111111111111"}, accounts)
}

func creditCardBlock() string {
	start := strings.Index(sampleCreditCardOFX, "<CREDITCARDMSGSRSV1>")
	end := strings.Index(sampleCreditCardOFX, "</OFX>")
	return sampleCreditCardOFX[start:end]
}

func ofxgoTransaction(name, memo string) ofxgo.Transaction {
	return ofxgo.Transaction{Name: ofxgo.String(name), Memo: ofxgo.String(memo)}
}
