package main

import (
	"database/sql"
	"testing"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pesoStatement holds two identical Handy transfers and one unrelated charge.
const pesoStatement = `OFXHEADER:100
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
<CURDEF>UYU
<BANKACCTFROM>
<BANKID>001
<ACCTID>UY-0042
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301120000[0:GMT]
<DTEND>20240331120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240305120000[0:GMT]
<TRNAMT>-582.00
<FITID>UY001
<NAME>Sole y Gian f*HANDY*
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240312120000[0:GMT]
<TRNAMT>-390.00
<FITID>UY002
<NAME>NETFLIX.COM
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240319120000[0:GMT]
<TRNAMT>-582.00
<FITID>UY003
<NAME>Sole y Gian f*HANDY*
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>10000.00
<DTASOF>20240331120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

// importAndTeach imports the statement for alice and categorizes the first
// Handy transfer by hand. It returns alice's transactions, oldest first.
func importAndTeach(t *testing.T, env *testEnv) []model.Transaction {
	t.Helper()
	path := env.writeFile("march.qfx", pesoStatement)

	out := env.mustRun("import", "--owner", "alice", path)
	assert.Contains(t, out, "Imported 3 new transactions")

	txns := env.transactions("alice")
	require.Len(t, txns, 3)

	out = env.mustRun("categorize", txns[0].ID, "Household", "--payee", "Sole")
	assert.Contains(t, out, "categorized as Household")
	assert.Contains(t, out, "gian sole")
	return txns
}

func TestImportCmd(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("march.qfx", pesoStatement)

	out := env.mustRun("import", "--owner", "alice", "--dry-run", path)
	assert.Contains(t, out, "Dry run: 3 transactions parsed")
	assert.Empty(t, env.transactions("alice"))

	out = env.mustRun("import", "--owner", "alice", path)
	assert.Contains(t, out, "Imported 3 new transactions (0 already stored)")

	// Re-importing is a no-op
	out = env.mustRun("import", "--owner", "alice", path)
	assert.Contains(t, out, "Imported 0 new transactions (3 already stored)")

	txns := env.transactions("alice")
	require.Len(t, txns, 3)
	assert.Equal(t, "UYU", txns[0].Currency)
	assert.Equal(t, "582", txns[0].Amount.String())
}

func TestImportCmdErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("import", "--owner", "alice", env.dir+"/missing-*.qfx")
	assert.ErrorContains(t, err, "no files found")

	path := env.writeFile("march.qfx", pesoStatement)
	_, err = env.run("import", path)
	assert.ErrorIs(t, err, common.ErrMissingConfig, "owner is required")
}

func TestCategorizeAndApply(t *testing.T) {
	env := newTestEnv(t)
	txns := importAndTeach(t, env)

	out := env.mustRun("apply", "--no-progress")
	assert.Contains(t, out, "Categorized 1 of 2 transactions")

	after := env.transactions("alice")
	require.Len(t, after, 3)
	assert.Equal(t, model.SourceManual, after[0].Source)
	assert.Empty(t, after[1].Category, "unrelated charge stays uncategorized")
	assert.Equal(t, "Household", after[2].Category)
	assert.Equal(t, "Sole", after[2].Payee)
	assert.Equal(t, model.SourceRule, after[2].Source)

	// Nothing left for the rules to do
	out = env.mustRun("apply", "--no-progress", "--owner", "alice")
	assert.Contains(t, out, "Categorized 0 of 1 transactions")

	// A categorized transaction is not changed without --force
	_, err := env.run("categorize", txns[2].ID, "Gifts")
	assert.ErrorIs(t, err, common.ErrAlreadyCategorized)

	env.mustRun("categorize", txns[2].ID, "Gifts", "--force")
	assert.Equal(t, "Gifts", env.transactions("alice")[2].Category)
}

func TestCategorizeMalformedCurrency(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("import", env.writeFile("pesos.ofx", pesoStatement), "--owner", "alice")
	txns := env.transactions("alice")
	require.NotEmpty(t, txns)

	db, err := sql.Open("sqlite3", env.dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE transactions SET currency = 'PESOS' WHERE id = ?`, txns[0].ID)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = env.run("categorize", txns[0].ID, "Household")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	assert.Empty(t, env.transactions("alice")[0].Category, "nothing is written when rules cannot be learned")
	out := env.mustRun("rules", "list", "--owner", "alice")
	assert.Contains(t, out, "No rules yet")
}

func TestImportWithApply(t *testing.T) {
	env := newTestEnv(t)
	importAndTeach(t, env)

	// A later statement with the same transfer is categorized on import
	later := env.writeFile("april.qfx",
		replaceAll(pesoStatement, map[string]string{"UY00": "UY10", "202403": "202404"}))
	out := env.mustRun("import", "--owner", "alice", "--apply", later)
	assert.Contains(t, out, "Imported 3 new transactions")
	assert.Contains(t, out, "Rules categorized 3 of 5 uncategorized transactions")
}

func TestRulesCmds(t *testing.T) {
	env := newTestEnv(t)
	importAndTeach(t, env)

	out := env.mustRun("rules", "list", "--owner", "alice")
	assert.Contains(t, out, "gian sole")
	assert.Contains(t, out, "Household")
	assert.Contains(t, out, "582")

	out = env.mustRun("rules", "match", "--owner", "alice", "--amount", "582.00", "--currency", "uyu", "Sole transfer")
	assert.Contains(t, out, "Tokens: sole transfer")
	assert.Contains(t, out, "No rules match.", "every rule token must appear in the description")

	out = env.mustRun("rules", "match", "--owner", "alice", "--amount", "582", "--currency", "UYU", "SOLE Y GIAN")
	assert.Contains(t, out, "Score")
	assert.Contains(t, out, "Household")

	out = env.mustRun("rules", "stats", "--owner", "alice")
	assert.Contains(t, out, "Rules:            4")
	assert.Contains(t, out, "Total usage:      0")

	_, err := env.run("rules", "match", "--owner", "alice", "--currency", "PESOS", "sole")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = env.run("rules", "match", "--owner", "alice", "--amount", "12,5", "sole")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRulesAccuracyCmd(t *testing.T) {
	env := newTestEnv(t)
	importAndTeach(t, env)

	out := env.mustRun("rules", "accuracy", "--owner", "alice", "1", "0.25")
	assert.Contains(t, out, "Rule #1 accuracy set to 0.25")

	out = env.mustRun("rules", "accuracy", "--owner", "alice", "1", "7")
	assert.Contains(t, out, "accuracy set to 1.00", "accuracy is clamped")

	_, err := env.run("rules", "accuracy", "--owner", "bob", "1", "0.5")
	assert.ErrorIs(t, err, common.ErrNotFound, "rules are owner-scoped")

	_, err = env.run("rules", "accuracy", "--owner", "alice", "one", "0.5")
	assert.ErrorContains(t, err, "invalid rule id")
}

func TestRulesCleanupCmd(t *testing.T) {
	env := newTestEnv(t)
	importAndTeach(t, env)

	out := env.mustRun("rules", "cleanup")
	assert.Contains(t, out, "Removed 0 stale rules (older than 90 days, used fewer than 1 times)")

	out = env.mustRun("checkpoint", "list")
	assert.Contains(t, out, "auto-cleanup-")

	out = env.mustRun("rules", "cleanup", "--owner", "alice", "--max-age-days", "0", "--min-usage", "1", "--no-checkpoint")
	assert.Contains(t, out, "Removed 4 stale rules")

	_, err := env.run("rules", "cleanup", "--max-age-days", "-1", "--no-checkpoint")
	assert.Error(t, err)
}

func TestCheckpointCmds(t *testing.T) {
	env := newTestEnv(t)
	importAndTeach(t, env)

	out := env.mustRun("checkpoint", "create", "--tag", "before-april", "--description", "Before April")
	assert.Contains(t, out, "Checkpoint before-april created (3 transactions, 4 rules")

	out = env.mustRun("checkpoint", "list")
	assert.Contains(t, out, "before-april")
	assert.Contains(t, out, "Before April")

	env.mustRun("checkpoint", "delete", "before-april")
	out = env.mustRun("checkpoint", "list")
	assert.Contains(t, out, "No checkpoints found.")

	_, err := env.run("checkpoint", "create", "--tag", "../outside")
	assert.Error(t, err)
}

func TestTransactionsAndCategoriesCmds(t *testing.T) {
	env := newTestEnv(t)
	importAndTeach(t, env)
	env.mustRun("apply", "--no-progress")

	out := env.mustRun("transactions", "list", "--owner", "alice")
	assert.Contains(t, out, "582.00 UYU")
	assert.Contains(t, out, "NETFLIX.COM")
	assert.Contains(t, out, "RULE")

	out = env.mustRun("transactions", "list", "--owner", "alice", "--uncategorized")
	assert.Contains(t, out, "NETFLIX.COM")
	assert.NotContains(t, out, "Sole y Gian")

	out = env.mustRun("categories", "--owner", "alice")
	assert.Contains(t, out, "Household")

	out = env.mustRun("categories", "--owner", "bob")
	assert.Contains(t, out, "No categories yet.")
}

func TestScheduleOnce(t *testing.T) {
	env := newTestEnv(t)
	importAndTeach(t, env)

	out := env.mustRun("schedule", "--once")
	assert.Contains(t, out, "Scheduled jobs ran once")

	after := env.transactions("alice")
	assert.Equal(t, "Household", after[2].Category)
}
