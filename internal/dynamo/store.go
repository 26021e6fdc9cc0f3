package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

// Items are keyed by collection path (partition) and document id (sort).
// Every write stamps a fresh _version token that transactions condition on.
const (
	attrCollection = "_collection"
	attrID         = "_id"
	attrVersion    = "_version"

	batchChunkSize = 100
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store is a docstore.Store on a single DynamoDB table. Transactions use
// optimistic version checks committed with TransactWriteItems.
type Store struct {
	client      dynamoAPI
	tableName   string
	maxAttempts int
	now         func() time.Time
	newVersion  func() string
}

var _ docstore.Store = (*Store)(nil)

func NewStore(client dynamoAPI, tableName string, maxAttempts int) *Store {
	if client == nil {
		panic("dynamo: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("dynamo: table name cannot be empty")
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{
		client:      client,
		tableName:   tableName,
		maxAttempts: maxAttempts,
		now:         time.Now,
		newVersion:  uuid.NewString,
	}
}

func itemKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: collection},
		attrID:         &types.AttributeValueMemberS{Value: id},
	}
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	doc, _, err := s.get(ctx, path)
	return doc, err
}

func (s *Store) get(ctx context.Context, path string) (*docstore.Document, string, error) {
	collection, id, err := docstore.Split(path)
	if err != nil {
		return nil, "", err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, "", docstore.Unavailable("get", err)
	}
	if len(out.Item) == 0 {
		return nil, "", docstore.ErrNotFound
	}
	return decodeItem(path, id, out.Item)
}

func (s *Store) List(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if !docstore.ValidCollection(collection) {
		return nil, docstore.ErrInvalidPath
	}

	var out []docstore.Document
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("#c = :c"),
			ExpressionAttributeNames: map[string]string{
				"#c": attrCollection,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: collection},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, docstore.Unavailable("list", err)
		}
		for _, item := range page.Items {
			idAttr, ok := item[attrID].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			doc, _, err := decodeItem(collection+"/"+idAttr.Value, idAttr.Value, item)
			if err != nil {
				return nil, err
			}
			if docstore.Matches(doc.Fields, filters) {
				out = append(out, *doc)
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields, opts ...docstore.SetOption) error {
	var w docstore.Writes
	w.Set(path, fields, opts...)
	item, err := s.writeItem(w.Ops()[0], s.now(), nil)
	if err != nil {
		return err
	}

	switch {
	case item.Put != nil:
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: item.Put.TableName,
			Item:      item.Put.Item,
		})
	case item.Update != nil:
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 item.Update.TableName,
			Key:                       item.Update.Key,
			UpdateExpression:          item.Update.UpdateExpression,
			ExpressionAttributeNames:  item.Update.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Update.ExpressionAttributeValues,
		})
	}
	if err != nil {
		return docstore.Unavailable("set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	collection, id, err := docstore.Split(path)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(collection, id),
	})
	if err != nil {
		return docstore.Unavailable("delete", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

// RunTransaction records the version of every document fn reads and commits
// the buffered writes only if none of those versions moved.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		tx := &dynamoTx{store: s, reads: map[string]readCondition{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		err := s.commitTx(ctx, tx)
		if isContention(err) {
			continue
		}
		if err != nil {
			return err
		}
		return nil
	}
	return docstore.ErrContention
}

func (s *Store) commitTx(ctx context.Context, tx *dynamoTx) error {
	ops := tx.writes.Ops()
	if len(ops) == 0 {
		return nil
	}

	now := s.now()
	written := make(map[string]bool, len(ops))
	items := make([]types.TransactWriteItem, 0, len(ops)+len(tx.reads))
	for _, op := range ops {
		var cond *readCondition
		if read, ok := tx.reads[op.Path]; ok {
			cond = &read
		}
		item, err := s.writeItem(op, now, cond)
		if err != nil {
			return err
		}
		items = append(items, item)
		written[op.Path] = true
	}

	readPaths := make([]string, 0, len(tx.reads))
	for path := range tx.reads {
		if !written[path] {
			readPaths = append(readPaths, path)
		}
	}
	sort.Strings(readPaths)
	for _, path := range readPaths {
		collection, id, _ := docstore.Split(path)
		read := tx.reads[path]
		expr, names, values := read.expression()
		items = append(items, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(s.tableName),
				Key:                       itemKey(collection, id),
				ConditionExpression:       aws.String(expr),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isContention(err) {
			return err
		}
		return docstore.Unavailable("transaction", err)
	}
	return nil
}

func isContention(err error) bool {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			code := aws.ToString(reason.Code)
			if code == "ConditionalCheckFailed" || code == "TransactionConflict" {
				return true
			}
		}
		return false
	}
	var conflict *types.TransactionConflictException
	return errors.As(err, &conflict)
}

type dynamoTx struct {
	store *Store
	reads  map[string]readCondition
	writes docstore.Writes
}

func (t *dynamoTx) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if t.writes.Len() > 0 {
		return nil, docstore.ErrReadAfterWrite
	}
	doc, version, err := t.store.get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		t.reads[path] = readCondition{}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	t.reads[path] = readCondition{exists: true, version: version}
	return doc, nil
}

func (t *dynamoTx) Set(path string, fields docstore.Fields, opts ...docstore.SetOption) {
	t.writes.Set(path, fields, opts...)
}

func (t *dynamoTx) Delete(path string) {
	t.writes.Delete(path)
}

// readCondition is what a transaction saw of one document. Items written
// before versioning existed have no version attribute and must stay
// writable.
type readCondition struct {
	exists  bool
	version string
}

func (c *readCondition) expression() (string, map[string]string, map[string]types.AttributeValue) {
	if !c.exists {
		return "attribute_not_exists(#pk)", map[string]string{"#pk": attrCollection}, nil
	}
	if c.version == "" {
		return "attribute_exists(#pk) AND attribute_not_exists(#ver)",
			map[string]string{"#pk": attrCollection, "#ver": attrVersion}, nil
	}
	return "#ver = :expected",
		map[string]string{"#ver": attrVersion},
		map[string]types.AttributeValue{":expected": &types.AttributeValueMemberS{Value: c.version}}
}

func (s *Store) Batch() docstore.Batch {
	return &dynamoBatch{store: s}
}

type dynamoBatch struct {
	docstore.Writes
	store *Store
}

// Commit writes each chunk with one TransactWriteItems call. A failing
// chunk applies nothing; earlier chunks stay written.
func (b *dynamoBatch) Commit(ctx context.Context) error {
	ops := b.Ops()
	now := b.store.now()
	chunks := docstore.Chunks(ops, batchChunkSize)
	applied := 0

	for ci, chunk := range chunks {
		items := make([]types.TransactWriteItem, 0, len(chunk))
		for _, op := range chunk {
			item, err := b.store.writeItem(op, now, nil)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		_, err := b.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if err != nil {
			var failed []string
			for _, rest := range chunks[ci:] {
				failed = append(failed, docstore.Paths(rest)...)
			}
			return &docstore.BatchError{Applied: applied, Failed: failed, Err: docstore.Unavailable("batch", err)}
		}
		applied += len(chunk)
	}

	b.Reset()
	return nil
}

// writeItem translates one buffered write. Merges become UpdateItem with
// if_not_exists for defaults; replacements become a full Put.
func (s *Store) writeItem(op docstore.Op, now time.Time, cond *readCondition) (types.TransactWriteItem, error) {
	collection, id, err := docstore.Split(op.Path)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	key := itemKey(collection, id)

	var condExpr *string
	var names map[string]string
	var values map[string]types.AttributeValue
	if cond != nil {
		expr, n, v := cond.expression()
		condExpr, names, values = aws.String(expr), n, v
	}

	if op.Kind == docstore.OpDelete {
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(s.tableName),
			Key:                       key,
			ConditionExpression:       condExpr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}}, nil
	}

	set, remove := docstore.Resolve(op.Fields, now)
	defaults, _ := docstore.Resolve(op.Options.Defaults, now)

	if !op.Options.Merge {
		for k, v := range defaults {
			if _, ok := set[k]; !ok {
				set[k] = v
			}
		}
		item, err := encodeFields(set)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		for k, v := range key {
			item[k] = v
		}
		item[attrVersion] = &types.AttributeValueMemberS{Value: s.newVersion()}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(s.tableName),
			Item:                      item,
			ConditionExpression:       condExpr,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}}, nil
	}

	update, err := buildUpdate(set, defaults, remove, s.newVersion())
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	if names == nil {
		names = map[string]string{}
	}
	for k, v := range update.names {
		names[k] = v
	}
	if values == nil {
		values = map[string]types.AttributeValue{}
	}
	for k, v := range update.values {
		values[k] = v
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 aws.String(s.tableName),
		Key:                       key,
		UpdateExpression:          aws.String(update.expression),
		ConditionExpression:       condExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}, nil
}

type updateExpr struct {
	expression string
	names      map[string]string
	values     map[string]types.AttributeValue
}

func buildUpdate(set, defaults docstore.Fields, remove []string, version string) (updateExpr, error) {
	u := updateExpr{
		names:  map[string]string{"#v": attrVersion},
		values: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: version}},
	}

	var sets []string
	for i, k := range sortedKeys(set) {
		av, err := attributevalue.Marshal(set[k])
		if err != nil {
			return u, fmt.Errorf("encode field %s: %w", k, err)
		}
		n, v := "#f"+strconv.Itoa(i), ":f"+strconv.Itoa(i)
		u.names[n] = k
		u.values[v] = av
		sets = append(sets, n+" = "+v)
	}
	for i, k := range sortedKeys(defaults) {
		if _, ok := set[k]; ok {
			continue
		}
		av, err := attributevalue.Marshal(defaults[k])
		if err != nil {
			return u, fmt.Errorf("encode default %s: %w", k, err)
		}
		n, v := "#d"+strconv.Itoa(i), ":d"+strconv.Itoa(i)
		u.names[n] = k
		u.values[v] = av
		sets = append(sets, fmt.Sprintf("%s = if_not_exists(%s, %s)", n, n, v))
	}
	sets = append(sets, "#v = :v")
	u.expression = "SET " + strings.Join(sets, ", ")

	if len(remove) > 0 {
		sort.Strings(remove)
		removes := make([]string, len(remove))
		for i, k := range remove {
			n := "#r" + strconv.Itoa(i)
			u.names[n] = k
			removes[i] = n
		}
		u.expression += " REMOVE " + strings.Join(removes, ", ")
	}
	return u, nil
}

func sortedKeys(fields docstore.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func encodeFields(fields docstore.Fields) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(fields)+3)
	for k, v := range fields {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

func decodeItem(path, id string, item map[string]types.AttributeValue) (*docstore.Document, string, error) {
	var version string
	if v, ok := item[attrVersion].(*types.AttributeValueMemberS); ok {
		version = v.Value
	}

	attrs := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if k == attrCollection || k == attrID || k == attrVersion {
			continue
		}
		attrs[k] = v
	}
	var decoded map[string]any
	if err := attributevalue.UnmarshalMap(attrs, &decoded); err != nil {
		return nil, "", fmt.Errorf("decode document %s: %w", path, err)
	}
	fields := docstore.Fields(decoded)
	if fields == nil {
		fields = docstore.Fields{}
	}
	return &docstore.Document{Path: path, ID: id, Fields: fields}, version, nil
}
