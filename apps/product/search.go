package product

import (
	"context"
	"fmt"
	"strconv"

	"oldmarket/apps/product/model"

	"github.com/olivere/elastic/v7"
)

// Searcher 商品全文检索，数据库仍是唯一数据源，索引只存检索字段
type Searcher interface {
	Index(ctx context.Context, p *model.Product) error
	Delete(ctx context.Context, id uint) error
	Search(ctx context.Context, q string, limit int) ([]uint, error)
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "name":        {"type": "text"},
      "description": {"type": "text"},
      "brand":       {"type": "text"},
      "size":        {"type": "keyword"},
      "is_active":   {"type": "boolean"}
    }
  }
}`

type searchDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	Size        string `json:"size"`
	IsActive    bool   `json:"is_active"`
}

type ESSearcher struct {
	client *elastic.Client
	index  string
}

// NewESSearcher 连接 Elasticsearch，sniff 和 healthcheck 关闭以兼容单节点/容器网络
func NewESSearcher(url, index string) (*ESSearcher, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(url),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("elastic client: %w", err)
	}
	return &ESSearcher{client: client, index: index}, nil
}

// EnsureIndex 索引不存在时创建
func (s *ESSearcher) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.IndexExists(s.index).Do(ctx)
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	if exists {
		return nil
	}
	if _, err := s.client.CreateIndex(s.index).BodyString(indexMapping).Do(ctx); err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	return nil
}

func (s *ESSearcher) Index(ctx context.Context, p *model.Product) error {
	doc := searchDoc{
		Name:        p.Name,
		Description: p.Description,
		Size:        p.Size,
		IsActive:    p.IsActive,
	}
	if p.Brand != nil {
		doc.Brand = p.Brand.Name
	}
	_, err := s.client.Index().
		Index(s.index).
		Id(strconv.FormatUint(uint64(p.ID), 10)).
		BodyJson(doc).
		Do(ctx)
	return err
}

func (s *ESSearcher) Delete(ctx context.Context, id uint) error {
	_, err := s.client.Delete().
		Index(s.index).
		Id(strconv.FormatUint(uint64(id), 10)).
		Do(ctx)
	if elastic.IsNotFound(err) {
		return nil
	}
	return err
}

// Search 返回按相关度排序的商品 ID
func (s *ESSearcher) Search(ctx context.Context, q string, limit int) ([]uint, error) {
	query := elastic.NewMultiMatchQuery(q, "name^3", "brand^2", "description").Fuzziness("AUTO")
	res, err := s.client.Search().
		Index(s.index).
		Query(query).
		Size(limit).
		FetchSource(false).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		id, err := strconv.ParseUint(hit.Id, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
