package billing

import (
	"context"

	"github.com/jhoicas/efactura-agt/internal/domain/repository"
)

// TxRunner ejecuta fn dentro de una transacción con repositorios atados a ella.
// Si fn devuelve error se hace rollback.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(repos repository.Repos) error) error
}

// Notifier despierta al worker de envíos cuando la emisión deja trabajo nuevo en la cola.
type Notifier interface {
	Notify()
}

type noopNotifier struct{}

func (noopNotifier) Notify() {}
