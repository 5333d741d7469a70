package sqlguard_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppongpan/Q-Collector-sub006/pkg/sqlguard"
)

func TestValidateDDL_AcceptsGeneratedStatements(t *testing.T) {
	g := sqlguard.New()

	statements := []string{
		"CREATE TABLE IF NOT EXISTS `customer_feedback` (`id` VARCHAR(36) NOT NULL, `full_name` VARCHAR(500) NULL, PRIMARY KEY (`id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
		"ALTER TABLE `customer_feedback` ADD COLUMN `email` VARCHAR(500) NULL",
		"ALTER TABLE `customer_feedback` DROP COLUMN `email`",
		"ALTER TABLE `customer_feedback` RENAME COLUMN `full_name` TO `contact_name`",
		"ALTER TABLE `customer_feedback` MODIFY COLUMN `score` TEXT NULL",
		"DROP TABLE IF EXISTS `customer_feedback`",
		"CREATE INDEX `idx_form_ref` ON `customer_feedback` (`form_ref`)",
	}

	for _, sql := range statements {
		assert.NoError(t, g.ValidateDDL(sql), sql)
	}
}

func TestValidateDDL_RejectsNonDDL(t *testing.T) {
	g := sqlguard.New()

	err := g.ValidateDDL("SELECT 1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not DDL")
}

func TestValidateDDL_RejectsMultipleStatements(t *testing.T) {
	g := sqlguard.New()

	err := g.ValidateDDL("DROP TABLE `a`; DROP TABLE `b`")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "single statement")
}

func TestValidateDDL_RejectsMalformedSQL(t *testing.T) {
	g := sqlguard.New()

	err := g.ValidateDDL("ALTER TABLE `t` ADD COLUMN")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not parse")
}

func TestValidateSingleStatement(t *testing.T) {
	g := sqlguard.New()

	assert.NoError(t, g.ValidateSingleStatement("SELECT `id` FROM `t` WHERE `status` = 'active'"))
	assert.NoError(t, g.ValidateSingleStatement("INSERT INTO `t` (`id`) VALUES ('x')"))
	assert.Error(t, g.ValidateSingleStatement("SELECT 1; SELECT 2"))
}

func TestGuard_ConcurrentUse(t *testing.T) {
	g := sqlguard.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.ValidateDDL("ALTER TABLE `t` ADD COLUMN `c` TEXT NULL"))
		}()
	}
	wg.Wait()
}
