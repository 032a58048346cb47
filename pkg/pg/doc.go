// Package pg connects to PostgreSQL through a pgx pool and applies goose
// migrations embedded in the packages that own the schema.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, migrations, "migrations", log); err != nil {
//	    return err
//	}
//
// Healthcheck returns a probe for readiness endpoints. IsNotFoundError and
// IsDuplicateKeyError classify driver errors.
package pg
