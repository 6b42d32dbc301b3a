// Package ofx turns OFX/QFX bank statements into manual transactions.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/bankflow/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRegex  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Transaction types as the backend names them.
const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

// Statement is one parsed account statement.
type Statement struct {
	AccountID    string
	Currency     string
	Transactions []model.Transaction
}

// Parser reads OFX/QFX files.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case.
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML exports sometimes drop the closing bracket of a bare tag.
	return openTagRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseStatements parses every bank and credit card statement in the file.
func (p *Parser) ParseStatements(ctx context.Context, reader io.Reader) ([]Statement, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var stmts []Statement
	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		stmts = append(stmts, p.convertStatement(string(stmt.BankAcctFrom.AcctID), stmt.CurDef, stmt.BankTranList))
	}
	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		stmts = append(stmts, p.convertStatement(string(stmt.CCAcctFrom.AcctID), stmt.CurDef, stmt.BankTranList))
	}
	return stmts, nil
}

// ParseFile parses the file and returns all transactions across statements.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	stmts, err := p.ParseStatements(ctx, reader)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	for _, s := range stmts {
		transactions = append(transactions, s.Transactions...)
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"statements", len(stmts))

	return transactions, nil
}

func (p *Parser) convertStatement(accountID string, cur ofxgo.CurrSymbol, list *ofxgo.TransactionList) Statement {
	stmt := Statement{AccountID: accountID, Currency: currencyCode(cur)}
	if list == nil {
		return stmt
	}
	for _, ofxTx := range list.Transactions {
		tx, err := p.convertTransaction(ofxTx, stmt.Currency)
		if err != nil {
			slog.Warn("Skipped OFX transaction",
				"account", accountID,
				"fitid", ofxTx.FiTID,
				"error", err)
			continue
		}
		stmt.Transactions = append(stmt.Transactions, tx)
	}
	return stmt
}

// convertTransaction maps an OFX entry onto a manual transaction. The
// backend assigns the id on create.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, currency string) (model.Transaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	txType := TypeIncome
	if amount.IsNegative() {
		txType = TypeExpense
	}

	posted := ofxTx.DtPosted.Time
	tx := model.Transaction{
		Amount:           amount.Abs(),
		OriginalAmount:   amount.Abs(),
		Type:             txType,
		Title:            p.extractMerchantName(ofxTx),
		Description:      strings.TrimSpace(string(ofxTx.Name)),
		OriginalCurrency: currency,
		Date:             posted.Format("2006-01-02"),
		Time:             posted.Format("15:04"),
		Source:           model.SourceManual,
		Notes:            notes(ofxTx),
	}

	// OFX carries no categories; a few transaction types imply one.
	var category string
	switch ofxTx.TrnType {
	case ofxgo.TrnTypeInt:
		category = "Interest"
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		category = "Bank Fees"
	case ofxgo.TrnTypeATM:
		category = "Cash"
	}
	if category != "" {
		tx.Category = &category
	}

	return tx, nil
}

func notes(tx ofxgo.Transaction) string {
	var parts []string
	if tx.Memo != "" {
		parts = append(parts, strings.TrimSpace(string(tx.Memo)))
	}
	if tx.CheckNum != "" {
		parts = append(parts, "check "+string(tx.CheckNum))
	}
	if tx.FiTID != "" {
		parts = append(parts, "fitid "+string(tx.FiTID))
	}
	return strings.Join(parts, "; ")
}

func currencyCode(cur ofxgo.CurrSymbol) string {
	if ok, _ := cur.Valid(); !ok {
		return ""
	}
	return cur.String()
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// GetAccounts returns the sorted, unique account ids in the file.
func (p *Parser) GetAccounts(ctx context.Context, reader io.Reader) ([]string, error) {
	stmts, err := p.ParseStatements(ctx, reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, s := range stmts {
		if s.AccountID == "" || seen[s.AccountID] {
			continue
		}
		seen[s.AccountID] = true
		accounts = append(accounts, s.AccountID)
	}
	sort.Strings(accounts)
	return accounts, nil
}

// DedupKey identifies a manual entry by its visible fields, so re-importing
// the same statement can skip rows already present.
func DedupKey(tx model.Transaction) string {
	return strings.Join([]string{
		tx.Date,
		tx.Type,
		tx.Amount.StringFixed(2),
		strings.ToUpper(strings.TrimSpace(tx.Title)),
	}, "|")
}

// Missing returns the parsed transactions whose DedupKey does not appear
// in existing.
func Missing(parsed, existing []model.Transaction) []model.Transaction {
	have := make(map[string]bool, len(existing))
	for _, tx := range existing {
		have[DedupKey(tx)] = true
	}
	var out []model.Transaction
	for _, tx := range parsed {
		key := DedupKey(tx)
		if have[key] {
			continue
		}
		have[key] = true
		out = append(out, tx)
	}
	return out
}
