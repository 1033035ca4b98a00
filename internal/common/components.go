package common

const (
	ComponentBlockIndexer        = "block-indexer"
	ComponentMilestoneIndexer    = "milestone-indexer"
	ComponentBlockBackfiller     = "block-backfiller"
	ComponentMilestoneBackfiller = "milestone-backfiller"
	ComponentFeeBackfiller       = "fee-backfiller"
	ComponentFinalityWriter      = "finality-writer"
	ComponentReorgHandler        = "reorg-handler"
	ComponentRPCClient           = "rpc-client"
	ComponentOracleClient        = "oracle-client"
	ComponentEnricher            = "enricher"
	ComponentSupervisor          = "supervisor"
	ComponentStore               = "store"
)

var AllComponents = map[string]struct{}{
	ComponentBlockIndexer:        {},
	ComponentMilestoneIndexer:    {},
	ComponentBlockBackfiller:     {},
	ComponentMilestoneBackfiller: {},
	ComponentFeeBackfiller:       {},
	ComponentFinalityWriter:      {},
	ComponentReorgHandler:        {},
	ComponentRPCClient:           {},
	ComponentOracleClient:        {},
	ComponentEnricher:            {},
	ComponentSupervisor:          {},
	ComponentStore:               {},
}
