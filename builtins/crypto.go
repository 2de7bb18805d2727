package builtins

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"

	"github.com/amoghe/go-crypt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ripemd160"

	"neutron/types"
)

// InitCrypto registers the crypto module: digest functions (sha256,
// sha512, ripemd160), modern password hashing (bcrypt, argon2), and a
// legacy crypt(3)-compatible hash via github.com/amoghe/go-crypt, which
// on linux wraps the system crypt_r through cgo, so the module needs cgo
// to build there.
func InitCrypto(reg *Registry) *types.Module {
	mod := types.NewModule("crypto")
	exports := mod.Exports

	exports.Set("sha256", Native("sha256", 1, func(_ any, args []types.Value) (types.Value, error) {
		s, err := requireString(args, 0, "crypto.sha256")
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256([]byte(s.String()))
		return types.NewBuffer(sum[:]), nil
	}))

	exports.Set("sha512", Native("sha512", 1, func(_ any, args []types.Value) (types.Value, error) {
		s, err := requireString(args, 0, "crypto.sha512")
		if err != nil {
			return nil, err
		}
		sum := sha512.Sum512([]byte(s.String()))
		return types.NewBuffer(sum[:]), nil
	}))

	exports.Set("ripemd160", Native("ripemd160", 1, func(_ any, args []types.Value) (types.Value, error) {
		s, err := requireString(args, 0, "crypto.ripemd160")
		if err != nil {
			return nil, err
		}
		h := ripemd160.New()
		h.Write([]byte(s.String()))
		return types.NewBuffer(h.Sum(nil)), nil
	}))

	exports.Set("hex", Native("hex", 1, func(_ any, args []types.Value) (types.Value, error) {
		buf, ok := args[0].(*types.ObjBuffer)
		if !ok {
			return nil, types.NewRuntimeError(types.ErrType, 0, "crypto.hex: expected a buffer")
		}
		return types.NewString(hex.EncodeToString(buf.Bytes)), nil
	}))

	exports.Set("bcrypt_hash", Native("bcrypt_hash", 1, func(_ any, args []types.Value) (types.Value, error) {
		s, err := requireString(args, 0, "crypto.bcrypt_hash")
		if err != nil {
			return nil, err
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(s.String()), bcrypt.DefaultCost)
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrType, 0, "crypto.bcrypt_hash: %s", err)
		}
		return types.NewString(string(hashed)), nil
	}))

	exports.Set("bcrypt_verify", Native("bcrypt_verify", 2, func(_ any, args []types.Value) (types.Value, error) {
		password, err := requireString(args, 0, "crypto.bcrypt_verify")
		if err != nil {
			return nil, err
		}
		hashStr, err := requireString(args, 1, "crypto.bcrypt_verify")
		if err != nil {
			return nil, err
		}
		err = bcrypt.CompareHashAndPassword([]byte(hashStr.String()), []byte(password.String()))
		return types.Bool(err == nil), nil
	}))

	exports.Set("argon2_hash", Native("argon2_hash", 2, func(_ any, args []types.Value) (types.Value, error) {
		password, err := requireString(args, 0, "crypto.argon2_hash")
		if err != nil {
			return nil, err
		}
		salt, err := requireString(args, 1, "crypto.argon2_hash")
		if err != nil {
			return nil, err
		}
		key := argon2.IDKey([]byte(password.String()), []byte(salt.String()), 1, 64*1024, 4, 32)
		return types.NewBuffer(key), nil
	}))

	// crypt reproduces traditional Unix crypt(3) hashing (DES/MD5-style
	// salts) for compatibility with legacy-format password stores, via
	// go-crypt's cgo binding to the system crypt_r on linux.
	exports.Set("crypt", Native("crypt", 2, func(_ any, args []types.Value) (types.Value, error) {
		password, err := requireString(args, 0, "crypto.crypt")
		if err != nil {
			return nil, err
		}
		salt, err := requireString(args, 1, "crypto.crypt")
		if err != nil {
			return nil, err
		}
		result, err := crypt.Crypt(password.String(), salt.String())
		if err != nil {
			return nil, types.NewRuntimeError(types.ErrType, 0, "crypto.crypt: %s", err)
		}
		return types.NewString(result), nil
	}))

	exports.Set("random_salt", Native("random_salt", 1, func(_ any, args []types.Value) (types.Value, error) {
		n, err := requireNumber(args, 0, "crypto.random_salt")
		if err != nil {
			return nil, err
		}
		buf := make([]byte, int(n))
		if _, err := rand.Read(buf); err != nil {
			return nil, types.NewRuntimeError(types.ErrType, 0, "crypto.random_salt: %s", err)
		}
		return types.NewString(hex.EncodeToString(buf)), nil
	}))

	return mod
}
