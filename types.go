package guardmod

import "github.com/jward/guardmod/internal/store"

// Public type aliases for the ledger types returned by Engine.Store.

type Store = store.Store
type Run = store.Run
type FileRecord = store.FileRecord
type DeclarationRecord = store.DeclarationRecord
