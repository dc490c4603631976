// Package store defines the records of the authentication core and the
// transactional repository interfaces the Engine persists them through.
//
// Every mutation happens on the [Tx] handle passed to the function given to
// [Store.RunInTx]; the function's writes commit atomically or not at all.
// Implementations live in store/redisstore and store/postgres.
package store
