package memstore

import (
	"testing"

	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}
