package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	sharedDomain "github.com/enrolab/enrolab/internal/shared/domain"
)

// OutboxRepoMongoDB implementa la interfaz sharedDomain.OutboxSource para
// despliegues cuyo lado de escritura persiste en MongoDB.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
	counter    *mongo.Collection
	log        *zap.Logger
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string, log *zap.Logger) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{
		outboxColl: client.Database(dbName).Collection("outbox"),
		counter:    client.Database(dbName).Collection("outbox_counters"),
		log:        log,
	}
}

// mongoOutboxRecord es un helper para mapear los documentos de la base de
// datos a un struct.
type mongoOutboxRecord struct {
	ID          int64      `bson:"_id"`
	EventID     string     `bson:"eventId"`
	EventType   string     `bson:"eventType"`
	Payload     []byte     `bson:"payload"`
	CreatedAt   time.Time  `bson:"createdAt"`
	Published   bool       `bson:"published"`
	PublishedAt *time.Time `bson:"publishedAt,omitempty"`
}

// Append inserta un sobre serializado en la colección outbox. MongoDB no
// comparte transacción con el lado SQL, así que este repositorio solo se usa
// cuando la entidad también vive en Mongo.
func (r *OutboxRepoMongoDB) Append(ctx context.Context, env sharedDomain.EventEnvelope, payload []byte) error {
	id, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}

	doc := mongoOutboxRecord{
		ID:        id,
		EventID:   env.EventID.String(),
		EventType: env.EventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Published: false,
	}
	_, err = r.outboxColl.InsertOne(ctx, doc)
	return err
}

// nextSeq emula el id monotónico que en SQL asigna la base de datos.
func (r *OutboxRepoMongoDB) nextSeq(ctx context.Context) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counter.FindOneAndUpdate(ctx,
		bson.M{"_id": "outbox"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&out)
	if err != nil {
		return 0, err
	}
	return out.Seq, nil
}

// FetchUnpublished obtiene los sobres no publicados, FIFO por createdAt.
// Los documentos con eventId indescifrable son poison aquí mismo: el relay
// marca por UUID, así que si se devolvieran nunca saldrían del lote y
// bloquearían la cabeza de la cola. Se marcan publicados por _id y se loguea.
func (r *OutboxRepoMongoDB) FetchUnpublished(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	filter := bson.M{"published": false}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mongoOutboxRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records, poisoned := splitRecords(docs)

	if len(poisoned) > 0 {
		for _, id := range poisoned {
			r.log.Error("☠️ Documento de outbox con eventId corrupto, se marca publicado",
				zap.Int64("doc_id", id),
			)
		}
		if err := r.quarantine(ctx, poisoned); err != nil {
			// Best-effort: si falla, el siguiente poll lo vuelve a intentar.
			r.log.Warn("⚠️ No se pudieron marcar los documentos corruptos", zap.Error(err))
		}
	}

	return records, nil
}

// splitRecords separa los documentos sanos de los que traen un eventId que no
// es un UUID. Devuelve los _id de estos últimos para ponerlos en cuarentena.
func splitRecords(docs []mongoOutboxRecord) ([]sharedDomain.OutboxRecord, []int64) {
	var records []sharedDomain.OutboxRecord
	var poisoned []int64

	for _, mo := range docs {
		eventID, err := uuid.Parse(mo.EventID)
		if err != nil {
			poisoned = append(poisoned, mo.ID)
			continue
		}

		records = append(records, sharedDomain.OutboxRecord{
			ID:          mo.ID,
			EventID:     eventID,
			EventType:   mo.EventType,
			Payload:     mo.Payload,
			CreatedAt:   mo.CreatedAt,
			Published:   mo.Published,
			PublishedAt: mo.PublishedAt,
		})
	}

	return records, poisoned
}

// quarantine marca documentos corruptos como publicados por _id, la única
// clave por la que se les puede alcanzar.
func (r *OutboxRepoMongoDB) quarantine(ctx context.Context, ids []int64) error {
	filter := bson.M{"_id": bson.M{"$in": ids}}
	update := bson.M{"$set": bson.M{"published": true, "publishedAt": time.Now().UTC()}}

	_, err := r.outboxColl.UpdateMany(ctx, filter, update)
	return err
}

// MarkPublishedBatch marca todas las filas indicadas en una sola escritura.
func (r *OutboxRepoMongoDB) MarkPublishedBatch(ctx context.Context, eventIDs []uuid.UUID, at time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}

	ids := make([]string, len(eventIDs))
	for i, id := range eventIDs {
		ids[i] = id.String()
	}

	filter := bson.M{"eventId": bson.M{"$in": ids}}
	update := bson.M{"$set": bson.M{"published": true, "publishedAt": at}}

	_, err := r.outboxColl.UpdateMany(ctx, filter, update)
	return err
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxSource = (*OutboxRepoMongoDB)(nil)
