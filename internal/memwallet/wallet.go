// Package memwallet is the concrete, bbolt-backed implementation of
// walletapi.Wallet used by this module: a deliberately small stand-in
// for an Indy-style keystore, using go.etcd.io/bbolt as the on-disk
// store with one handle per actor, opened once, closed on actor
// shutdown.
package memwallet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/lainio/err2"
	"go.etcd.io/bbolt"

	"github.com/vault-mesh/agency/internal/cryptutil"
	"github.com/vault-mesh/agency/internal/walletapi"
)

var (
	bucketDIDs = []byte("dids") // did -> verkey
	bucketKeys = []byte("keys") // verkey -> ed25519 seed (only for my DIDs)
	bucketDIDMeta = []byte("did_meta") // did -> metadata bytes
	bucketPairwise = []byte("pairwise") // theirDID -> json(pairwiseRecord)
)

type openWallet struct {
	db *bbolt.DB
	path string

	mu sync.RWMutex
	keys map[string]cryptutil.KeyPair // verkey -> keypair, loaded lazily from bucketKeys
}

// Wallet is the adapter. BaseDir is where each logical wallet's bbolt
// file is created, named by its Config.ID.
type Wallet struct {
	BaseDir string

	mu sync.Mutex
	handles map[walletapi.Handle]*openWallet
}

func New(baseDir string) *Wallet {
	return &Wallet{BaseDir: baseDir, handles: map[walletapi.Handle]*openWallet{}}
}

func (w *Wallet) dbPath(id string) string {
	return filepath.Join(w.BaseDir, id+".bolt")
}

func (w *Wallet) Create(_ context.Context, cfg walletapi.Config, _ walletapi.Credentials) (err error) {
	defer err2.Handle(&err)

	if err := os.MkdirAll(w.BaseDir, 0o700); err != nil {
		return err
	}
	path := w.dbPath(cfg.ID)
	if _, statErr := os.Stat(path); statErr == nil {
		return &walletapi.ErrAlreadyExists{What: fmt.Sprintf("wallet %q", cfg.ID)}
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDIDs, bucketKeys, bucketDIDMeta, bucketPairwise} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Wallet) Open(_ context.Context, cfg walletapi.Config, _ walletapi.Credentials) (h walletapi.Handle, err error) {
	defer err2.Handle(&err)

	path := w.dbPath(cfg.ID)
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return "", err
	}

	ow := &openWallet{db: db, path: path, keys: map[string]cryptutil.KeyPair{}}
	if err := ow.preloadKeys(); err != nil {
		db.Close()
		return "", err
	}

	handle := walletapi.Handle(uuid.NewString())
	w.mu.Lock()
	w.handles[handle] = ow
	w.mu.Unlock()
	return handle, nil
}

func (w *Wallet) Close(_ context.Context, h walletapi.Handle) error {
	w.mu.Lock()
	ow, ok := w.handles[h]
	delete(w.handles, h)
	w.mu.Unlock()
	if !ok {
		return &walletapi.ErrNotFound{What: "wallet handle"}
	}
	return ow.db.Close()
}

func (w *Wallet) get(h walletapi.Handle) (*openWallet, error) {
	w.mu.Lock()
	ow, ok := w.handles[h]
	w.mu.Unlock()
	if !ok {
		return nil, &walletapi.ErrNotFound{What: "wallet handle"}
	}
	return ow, nil
}

func (ow *openWallet) preloadKeys() error {
	return ow.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		if b == nil {
			return nil
		}
		return b.ForEach(func(vk, seed []byte) error {
			kp, err := cryptutil.GenerateKeyPair(append([]byte(nil), seed...))
			if err != nil {
				return err
			}
			ow.mu.Lock()
			ow.keys[string(vk)] = kp
			ow.mu.Unlock()
			return nil
		})
	})
}

func (ow *openWallet) keyFor(verKey string) (cryptutil.KeyPair, bool) {
	ow.mu.RLock()
	defer ow.mu.RUnlock()
	kp, ok := ow.keys[verKey]
	return kp, ok
}

func (w *Wallet) CreateAndStoreMyDID(_ context.Context, h walletapi.Handle, seed []byte) (did walletapi.DID, err error) {
	defer err2.Handle(&err)

	ow, err := w.get(h)
	if err != nil {
		return did, err
	}
	kp, err := cryptutil.GenerateKeyPair(seed)
	if err != nil {
		return did, err
	}
	docDID := cryptutil.DID(kp.Public)

	err = ow.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketDIDs).Put([]byte(docDID), []byte(kp.VerKey)); err != nil {
			return err
		}
		return tx.Bucket(bucketKeys).Put([]byte(kp.VerKey), kp.Private.Seed())
	})
	if err != nil {
		return did, err
	}
	ow.mu.Lock()
	ow.keys[kp.VerKey] = kp
	ow.mu.Unlock()

	return walletapi.DID{DID: docDID, VerKey: kp.VerKey}, nil
}

func (w *Wallet) StoreTheirDID(_ context.Context, h walletapi.Handle, did, verKey string) (err error) {
	defer err2.Handle(&err)

	ow, err := w.get(h)
	if err != nil {
		return err
	}
	return ow.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDIDs).Put([]byte(did), []byte(verKey))
	})
}

func (w *Wallet) KeyForLocalDID(_ context.Context, h walletapi.Handle, did string) (vk string, err error) {
	defer err2.Handle(&err)

	ow, err := w.get(h)
	if err != nil {
		return "", err
	}
	err = ow.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketDIDs).Get([]byte(did))
		if v == nil {
			return &walletapi.ErrNotFound{What: fmt.Sprintf("did %q", did)}
		}
		vk = string(v)
		return nil
	})
	return vk, err
}

func (w *Wallet) SetDIDMetadata(_ context.Context, h walletapi.Handle, did string, metadata []byte) (err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return err
	}
	return ow.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDIDMeta).Put([]byte(did), metadata)
	})
}

func (w *Wallet) GetDIDMetadata(_ context.Context, h walletapi.Handle, did string) (meta []byte, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return nil, err
	}
	err = ow.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketDIDMeta).Get([]byte(did))
		if v != nil {
			meta = append([]byte(nil), v...)
		}
		return nil
	})
	return meta, err
}

type pairwiseRecord struct {
	MyDID string `json:"myDid"`
	TheirDID string `json:"theirDid"`
	Metadata []byte `json:"metadata"`
}

func (w *Wallet) CreatePairwise(_ context.Context, h walletapi.Handle, theirDID, myDID string, metadata []byte) (err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return err
	}
	return ow.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPairwise)
		if b.Get([]byte(theirDID)) != nil {
			return &walletapi.ErrAlreadyExists{What: fmt.Sprintf("pairwise %q", theirDID)}
		}
		raw, err := json.Marshal(pairwiseRecord{MyDID: myDID, TheirDID: theirDID, Metadata: metadata})
		if err != nil {
			return err
		}
		return b.Put([]byte(theirDID), raw)
	})
}

func (w *Wallet) ListPairwise(_ context.Context, h walletapi.Handle) (out []walletapi.PairwiseRecord, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return nil, err
	}
	err = ow.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPairwise).ForEach(func(_, v []byte) error {
			var pr pairwiseRecord
			if err := json.Unmarshal(v, &pr); err != nil {
				return err
			}
			out = append(out, walletapi.PairwiseRecord{MyDID: pr.MyDID, TheirDID: pr.TheirDID, Metadata: pr.Metadata})
			return nil
		})
	})
	return out, err
}

func (w *Wallet) GetPairwise(_ context.Context, h walletapi.Handle, theirDID string) (rec walletapi.PairwiseRecord, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return rec, err
	}
	err = ow.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketPairwise).Get([]byte(theirDID))
		if v == nil {
			return &walletapi.ErrNotFound{What: fmt.Sprintf("pairwise %q", theirDID)}
		}
		var pr pairwiseRecord
		if err := json.Unmarshal(v, &pr); err != nil {
			return err
		}
		rec = walletapi.PairwiseRecord{MyDID: pr.MyDID, TheirDID: pr.TheirDID, Metadata: pr.Metadata}
		return nil
	})
	return rec, err
}

func (w *Wallet) SetPairwiseMetadata(_ context.Context, h walletapi.Handle, theirDID string, metadata []byte) (err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return err
	}
	return ow.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPairwise)
		v := b.Get([]byte(theirDID))
		if v == nil {
			return &walletapi.ErrNotFound{What: fmt.Sprintf("pairwise %q", theirDID)}
		}
		var pr pairwiseRecord
		if err := json.Unmarshal(v, &pr); err != nil {
			return err
		}
		pr.Metadata = metadata
		raw, err := json.Marshal(pr)
		if err != nil {
			return err
		}
		return b.Put([]byte(theirDID), raw)
	})
}

func (w *Wallet) AuthCrypt(_ context.Context, h walletapi.Handle, myVerKey, theirVerKey string, msg []byte) (out []byte, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return nil, err
	}
	kp, ok := ow.keyFor(myVerKey)
	if !ok {
		return nil, &walletapi.ErrNotFound{What: fmt.Sprintf("key %q", myVerKey)}
	}
	return cryptutil.AuthCrypt(kp, theirVerKey, msg)
}

func (w *Wallet) AnonCrypt(_ context.Context, theirVerKey string, msg []byte) ([]byte, error) {
	return cryptutil.AnonCrypt(theirVerKey, msg)
}

func (w *Wallet) AuthDecrypt(_ context.Context, h walletapi.Handle, myVerKey string, ciphertext []byte) (sender string, plain []byte, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return "", nil, err
	}
	kp, ok := ow.keyFor(myVerKey)
	if !ok {
		return "", nil, &walletapi.ErrNotFound{What: fmt.Sprintf("key %q", myVerKey)}
	}
	return cryptutil.AuthDecrypt(kp, ciphertext)
}

func (w *Wallet) AnonDecrypt(_ context.Context, h walletapi.Handle, myVerKey string, ciphertext []byte) (plain []byte, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return nil, err
	}
	kp, ok := ow.keyFor(myVerKey)
	if !ok {
		return nil, &walletapi.ErrNotFound{What: fmt.Sprintf("key %q", myVerKey)}
	}
	return cryptutil.AnonDecrypt(kp, ciphertext)
}

func (w *Wallet) Pack(_ context.Context, h walletapi.Handle, senderVerKey string, recipientVerKeys []string, msg []byte) (out []byte, err error) {
	defer err2.Handle(&err)
	var sender *cryptutil.KeyPair
	if senderVerKey != "" {
		ow, err := w.get(h)
		if err != nil {
			return nil, err
		}
		kp, ok := ow.keyFor(senderVerKey)
		if !ok {
			return nil, &walletapi.ErrNotFound{What: fmt.Sprintf("key %q", senderVerKey)}
		}
		sender = &kp
	}
	return cryptutil.Pack(sender, recipientVerKeys, msg)
}

func (w *Wallet) Unpack(_ context.Context, h walletapi.Handle, myVerKey string, packed []byte) (sender string, plain []byte, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return "", nil, err
	}
	kp, ok := ow.keyFor(myVerKey)
	if !ok {
		return "", nil, &walletapi.ErrNotFound{What: fmt.Sprintf("key %q", myVerKey)}
	}
	return cryptutil.Unpack(kp, packed)
}

func (w *Wallet) Sign(_ context.Context, h walletapi.Handle, myVerKey string, msg []byte) (sig []byte, err error) {
	defer err2.Handle(&err)
	ow, err := w.get(h)
	if err != nil {
		return nil, err
	}
	kp, ok := ow.keyFor(myVerKey)
	if !ok {
		return nil, &walletapi.ErrNotFound{What: fmt.Sprintf("key %q", myVerKey)}
	}
	return cryptutil.Sign(kp, msg), nil
}

