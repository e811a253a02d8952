package database

import (
	"context"
	"fmt"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4JRelationshipRepository implements RelationshipRepository interface
type Neo4JRelationshipRepository struct {
	client *Neo4JClient
	score  service.ScoreFunc
	logger *logger.Logger
}

// NewNeo4JRelationshipRepository creates a new Neo4J relationship repository
func NewNeo4JRelationshipRepository(client *Neo4JClient, score service.ScoreFunc, logger *logger.Logger) repository.RelationshipRepository {
	if score == nil {
		score = service.DefaultRelationshipScore
	}
	return &Neo4JRelationshipRepository{
		client: client,
		score:  score,
		logger: logger.WithComponent("neo4j-relationship-repo"),
	}
}

const timestampFormat = "2006-01-02T15:04:05.000Z"

// UpsertRelationship applies an additive delta to the (from, to) edge inside
// one managed transaction. The MERGE increments run server-side, so two
// concurrent deltas for the same edge serialize on the relationship lock and
// neither update is lost. Strength is recomputed from the post-update totals,
// never accumulated.
func (r *Neo4JRelationshipRepository) UpsertRelationship(ctx context.Context, from, to string, delta *entity.RelationshipDelta) (*entity.WalletRelationship, error) {
	session := r.client.NewSession(ctx)
	defer session.Close(ctx)

	mergeQuery := `
		MERGE (from:Wallet {address: $from_address})
		ON CREATE SET from.first_seen = datetime($timestamp)
		MERGE (to:Wallet {address: $to_address})
		ON CREATE SET to.first_seen = datetime($timestamp)
		MERGE (from)-[r:INTERACTS_WITH]->(to)
		ON CREATE SET
			r.total_sol = $lamports,
			r.total_transactions = $transactions,
			r.first_interaction = datetime($timestamp),
			r.last_interaction = datetime($timestamp)
		ON MATCH SET
			r.total_sol = r.total_sol + $lamports,
			r.total_transactions = r.total_transactions + $transactions,
			r.first_interaction = CASE WHEN datetime($timestamp) < r.first_interaction
				THEN datetime($timestamp) ELSE r.first_interaction END,
			r.last_interaction = CASE WHEN datetime($timestamp) > r.last_interaction
				THEN datetime($timestamp) ELSE r.last_interaction END
		RETURN r.total_sol, r.total_transactions, r.first_interaction, r.last_interaction
	`

	params := map[string]interface{}{
		"from_address": from,
		"to_address":   to,
		"lamports":     delta.Lamports,
		"transactions": delta.Transactions,
		"timestamp":    delta.Timestamp.UTC().Format(timestampFormat),
	}

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, mergeQuery, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}

		rel := &entity.WalletRelationship{
			FromAddress:       from,
			ToAddress:         to,
			TotalSol:          record.Values[0].(int64),
			TotalTransactions: record.Values[1].(int64),
			FirstInteraction:  record.Values[2].(time.Time),
			LastInteraction:   record.Values[3].(time.Time),
		}
		rel.Strength = r.score(rel.TotalTransactions, rel.TotalSol, rel.LastInteraction, time.Now())

		_, err = tx.Run(ctx, `
			MATCH (:Wallet {address: $from_address})-[r:INTERACTS_WITH]->(:Wallet {address: $to_address})
			SET r.relationship_strength = $strength
		`, map[string]interface{}{
			"from_address": from,
			"to_address":   to,
			"strength":     rel.Strength,
		})
		if err != nil {
			return nil, err
		}

		return rel, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert relationship: %w", err)
	}

	return result.(*entity.WalletRelationship), nil
}

// GetRelationship retrieves the edge for an ordered pair. Records are
// collected inside the transaction function; a result is not valid once
// ExecuteRead has returned.
func (r *Neo4JRelationshipRepository) GetRelationship(ctx context.Context, from, to string) (*entity.WalletRelationship, error) {
	session := r.client.NewSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (from:Wallet {address: $from_address})-[r:INTERACTS_WITH]->(to:Wallet {address: $to_address})
		RETURN from.address, to.address, r.total_sol, r.total_transactions,
			r.first_interaction, r.last_interaction, r.relationship_strength
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{
			"from_address": from,
			"to_address":   to,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}

	records := result.([]*neo4j.Record)
	if len(records) == 0 {
		return nil, fmt.Errorf("relationship not found: %s -> %s", from, to)
	}

	return scanRelationship(records[0].Values), nil
}

// GetTopRelationships retrieves a wallet's outgoing edges ranked by strength
func (r *Neo4JRelationshipRepository) GetTopRelationships(ctx context.Context, address string, limit int) ([]*entity.WalletRelationship, error) {
	session := r.client.NewSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (from:Wallet {address: $address})-[r:INTERACTS_WITH]->(to:Wallet)
		RETURN from.address, to.address, r.total_sol, r.total_transactions,
			r.first_interaction, r.last_interaction, r.relationship_strength
		ORDER BY r.relationship_strength DESC
		LIMIT $limit
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{
			"address": address,
			"limit":   limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get top relationships: %w", err)
	}

	var relationships []*entity.WalletRelationship
	for _, record := range result.([]*neo4j.Record) {
		relationships = append(relationships, scanRelationship(record.Values))
	}

	return relationships, nil
}

func scanRelationship(values []any) *entity.WalletRelationship {
	return &entity.WalletRelationship{
		FromAddress:       values[0].(string),
		ToAddress:         values[1].(string),
		TotalSol:          values[2].(int64),
		TotalTransactions: values[3].(int64),
		FirstInteraction:  values[4].(time.Time),
		LastInteraction:   values[5].(time.Time),
		Strength:          values[6].(float64),
	}
}
