package config

import (
	"context"
	"reflect"

	"github.com/mmdatafocus/assetshop_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ActorStampPlugin fills created_by / updated_by columns from the request's username
// when the model has them.
//
// NOTE:
// - Explicit non-empty values on create are kept.
// - Raw SQL is not stamped.
type ActorStampPlugin struct{}

func NewActorStampPlugin() *ActorStampPlugin { return &ActorStampPlugin{} }

func (p *ActorStampPlugin) Name() string { return "actor_stamp" }

func (p *ActorStampPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("actor_stamp:create", actorStampCreateCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("actor_stamp:update", actorStampUpdateCallback); err != nil {
		return err
	}
	return nil
}

func actorStampCreateCallback(db *gorm.DB) {
	actor, ok := actorFromStatement(db)
	if !ok {
		return
	}
	for _, column := range []string{"created_by", "updated_by"} {
		field := db.Statement.Schema.LookUpField(column)
		if field == nil {
			continue
		}
		rv := db.Statement.ReflectValue
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				stampIfZero(db.Statement.Context, field, reflect.Indirect(rv.Index(i)), actor)
			}
		case reflect.Struct:
			stampIfZero(db.Statement.Context, field, rv, actor)
		}
	}
}

func actorStampUpdateCallback(db *gorm.DB) {
	actor, ok := actorFromStatement(db)
	if !ok {
		return
	}
	if db.Statement.Schema.LookUpField("updated_by") == nil {
		return
	}
	db.Statement.SetColumn("updated_by", actor, true)
}

func stampIfZero(ctx context.Context, field *schema.Field, rv reflect.Value, actor string) {
	if rv.Kind() != reflect.Struct {
		return
	}
	if _, isZero := field.ValueOf(ctx, rv); isZero {
		_ = field.Set(ctx, rv, actor)
	}
}

func actorFromStatement(db *gorm.DB) (string, bool) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return "", false
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return "", false
	}
	if skip, ok := appctx.GetBool(ctx, appctx.ContextKeySkipActorStamp); ok && skip {
		return "", false
	}
	actor, ok := appctx.GetString(ctx, appctx.ContextKeyUsername)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}
