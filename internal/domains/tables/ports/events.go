package ports

import "github.com/Apurer/tableside/internal/domains/tables/domain"

// Publisher receives table notifications after a change has been stored.
type Publisher interface {
	PublishTableChanged(table domain.CachedTable)
	PublishTableListChanged(tables []domain.CachedTable)
}
