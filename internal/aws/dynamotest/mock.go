// Package dynamotest provides an in-memory DynamoDB for unit tests.
//
// It understands the small expression grammar the stores in this module issue:
// AND/OR chains of comparisons (=, <>, <, <=, >, >=) and attribute_exists /
// attribute_not_exists, plus "SET a = :v, b = :w" update expressions. It is not
// a general purpose emulator.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type keySchema struct {
	pk, sk string
}

type table struct {
	key     keySchema
	indexes map[string]keySchema
	items   map[string]map[string]types.AttributeValue
}

// Mock implements aws.DynamoDBAPI on top of mutex-guarded maps.
type Mock struct {
	mu     sync.Mutex
	tables map[string]*table
	fail   map[string]error

	PutCalls    int
	GetCalls    int
	UpdateCalls int
	DeleteCalls int
	QueryCalls  int
}

// New returns an empty mock with no tables.
func New() *Mock {
	return &Mock{
		tables: map[string]*table{},
		fail:   map[string]error{},
	}
}

// CreateTable registers a table with a partition key and an optional sort key.
func (m *Mock) CreateTable(name, pk, sk string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = &table{
		key:     keySchema{pk: pk, sk: sk},
		indexes: map[string]keySchema{},
		items:   map[string]map[string]types.AttributeValue{},
	}
}

// CreateIndex registers a global secondary index on an existing table.
func (m *Mock) CreateIndex(tableName, index, pk, sk string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[tableName].indexes[index] = keySchema{pk: pk, sk: sk}
}

// FailNext makes the next call of op ("PutItem", "GetItem", "UpdateItem",
// "DeleteItem", "Query") return err.
func (m *Mock) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

// Items returns a copy of every item stored in tableName.
func (m *Mock) Items(tableName string) []map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]map[string]types.AttributeValue, 0, len(t.items))
	for _, it := range t.items {
		out = append(out, copyItem(it))
	}
	return out
}

// Seed stores item verbatim, bypassing condition checks.
func (m *Mock) Seed(tableName string, item map[string]types.AttributeValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(tableName)
	if err != nil {
		return err
	}
	k, err := t.keyOf(item)
	if err != nil {
		return err
	}
	t.items[k] = copyItem(item)
	return nil
}

func (m *Mock) table(name string) (*table, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + name)}
	}
	return t, nil
}

func (m *Mock) injected(op string) error {
	if err, ok := m.fail[op]; ok {
		delete(m.fail, op)
		return err
	}
	return nil
}

func (m *Mock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if err := m.injected("PutItem"); err != nil {
		return nil, err
	}
	t, err := m.table(deref(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, old)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionFailed(old, params.ReturnValuesOnConditionCheckFailure)
		}
	}
	t.items[k] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *Mock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if err := m.injected("GetItem"); err != nil {
		return nil, err
	}
	t, err := m.table(deref(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *Mock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if err := m.injected("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := m.table(deref(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, old)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionFailed(old, params.ReturnValuesOnConditionCheckFailure)
		}
	}

	next := copyItem(old)
	if next == nil {
		next = copyItem(params.Key)
	}
	if params.UpdateExpression != nil {
		if err := applyUpdate(*params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, next); err != nil {
			return nil, err
		}
	}
	t.items[k] = next

	out := &dyn.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = copyItem(next)
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (m *Mock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if err := m.injected("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := m.table(deref(params.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, old)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionFailed(old, params.ReturnValuesOnConditionCheckFailure)
		}
	}
	delete(t.items, k)

	out := &dyn.DeleteItemOutput{}
	if params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (m *Mock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if err := m.injected("Query"); err != nil {
		return nil, err
	}
	t, err := m.table(deref(params.TableName))
	if err != nil {
		return nil, err
	}
	schema := t.key
	if params.IndexName != nil {
		s, ok := t.indexes[*params.IndexName]
		if !ok {
			return nil, fmt.Errorf("index not found: %s", *params.IndexName)
		}
		schema = s
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("query requires a key condition")
	}

	var matched []map[string]types.AttributeValue
	for _, item := range t.items {
		ok, err := evalCondition(*params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if params.FilterExpression != nil {
			ok, err = evalCondition(*params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, copyItem(item))
	}

	if schema.sk != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c, _ := compare(matched[i][schema.sk], matched[j][schema.sk])
			return c < 0
		})
	}
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if params.Limit != nil && int(*params.Limit) < len(matched) {
		matched = matched[:*params.Limit]
	}
	return &dyn.QueryOutput{Items: matched, Count: int32(len(matched))}, nil
}

func (t *table) keyOf(item map[string]types.AttributeValue) (string, error) {
	pk, ok := item[t.key.pk]
	if !ok {
		return "", fmt.Errorf("missing partition key %q", t.key.pk)
	}
	k := scalar(pk)
	if t.key.sk != "" {
		sk, ok := item[t.key.sk]
		if !ok {
			return "", fmt.Errorf("missing sort key %q", t.key.sk)
		}
		k += "\x00" + scalar(sk)
	}
	return k, nil
}

func conditionFailed(old map[string]types.AttributeValue, rv types.ReturnValuesOnConditionCheckFailure) error {
	e := &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld {
		e.Item = copyItem(old)
	}
	return e
}

func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, alt := range strings.Split(expr, " OR ") {
		all := true
		for _, term := range strings.Split(alt, " AND ") {
			ok, err := evalTerm(strings.TrimSpace(term), names, values, item)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalTerm(term string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	for _, fn := range []string{"attribute_not_exists", "attribute_exists"} {
		if strings.HasPrefix(term, fn+"(") && strings.HasSuffix(term, ")") {
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(term, fn+"("), ")"), names)
			_, exists := item[attr]
			if fn == "attribute_exists" {
				return exists, nil
			}
			return !exists, nil
		}
	}

	parts := strings.Fields(term)
	if len(parts) != 3 {
		return false, fmt.Errorf("unsupported condition term %q", term)
	}
	lhs, lok := operand(parts[0], names, values, item)
	rhs, rok := operand(parts[2], names, values, item)
	if !lok || !rok {
		return false, nil
	}
	c, comparable := compare(lhs, rhs)
	switch parts[1] {
	case "=":
		return comparable && c == 0, nil
	case "<>":
		return !comparable || c != 0, nil
	case "<":
		return comparable && c < 0, nil
	case "<=":
		return comparable && c <= 0, nil
	case ">":
		return comparable && c > 0, nil
	case ">=":
		return comparable && c >= 0, nil
	}
	return false, fmt.Errorf("unsupported operator %q", parts[1])
}

func applyUpdate(expr string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, assignment := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		parts := strings.Fields(assignment)
		if len(parts) != 3 || parts[1] != "=" {
			return fmt.Errorf("unsupported assignment %q", assignment)
		}
		v, ok := values[parts[2]]
		if !ok {
			return fmt.Errorf("missing expression value %s", parts[2])
		}
		item[resolveName(parts[0], names)] = v
	}
	return nil
}

func operand(tok string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (types.AttributeValue, bool) {
	if strings.HasPrefix(tok, ":") {
		v, ok := values[tok]
		return v, ok
	}
	v, ok := item[resolveName(tok, names)]
	return v, ok
}

func resolveName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		if n, ok := names[tok]; ok {
			return n
		}
	}
	return tok
}

// compare orders two scalar attribute values. The bool reports whether the
// values have comparable types.
func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		x, err1 := strconv.ParseFloat(av.Value, 64)
		y, err2 := strconv.ParseFloat(bv.Value, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok || av.Value != bv.Value {
			return 1, ok
		}
		return 0, true
	case *types.AttributeValueMemberNULL:
		_, ok := b.(*types.AttributeValueMemberNULL)
		return 0, ok
	}
	return 0, false
}

func scalar(v types.AttributeValue) string {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value
	case *types.AttributeValueMemberN:
		return tv.Value
	}
	return fmt.Sprintf("%v", v)
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }
