// Package redisstore is the fast-store adapter: ordered streams with
// consumer groups and advisory locks, built on go-redis — the
// teacher's own backbone dependency. ScriptRegistry is adapted from the
// teacher's script_registry.go, generalized to a shared component used by
// both the producer's claim-lock and the drainer's shard lock.
package redisstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ScriptDef defines a Lua script and its expected keys, by name, so callers
// don't have to remember positional KEYS ordering.
type ScriptDef struct {
	Script string
	Keys   map[string]int
}

type registeredScript struct {
	sha string
	def ScriptDef
}

// ScriptRegistry loads Lua scripts once via SCRIPT LOAD and runs them with
// EVALSHA, transparently reloading on NOSCRIPT.
type ScriptRegistry struct {
	client  redis.UniversalClient
	scripts map[string]*registeredScript
}

func NewScriptRegistry(client redis.UniversalClient) *ScriptRegistry {
	return &ScriptRegistry{client: client, scripts: make(map[string]*registeredScript)}
}

func (r *ScriptRegistry) Load(ctx context.Context, scripts map[string]ScriptDef) error {
	for name, def := range scripts {
		sha, err := r.client.ScriptLoad(ctx, def.Script).Result()
		if err != nil {
			return fmt.Errorf("load script %q: %w", name, err)
		}
		r.scripts[name] = &registeredScript{sha: sha, def: def}
	}
	return nil
}

func (r *ScriptRegistry) Run(ctx context.Context, name string, keys map[string]string, args ...interface{}) (interface{}, error) {
	script, ok := r.scripts[name]
	if !ok {
		return nil, fmt.Errorf("script %q is not registered", name)
	}

	numKeys := len(script.def.Keys)
	ordered := make([]string, numKeys)
	for keyName, idx := range script.def.Keys {
		val, ok := keys[keyName]
		if !ok {
			return nil, fmt.Errorf("missing required key %q for script %q", keyName, name)
		}
		if idx < 1 || idx > numKeys {
			return nil, fmt.Errorf("invalid key index %d for key %q in script %q", idx, keyName, name)
		}
		ordered[idx-1] = val
	}

	res, err := r.client.EvalSha(ctx, script.sha, ordered, args...).Result()
	if err != nil {
		if strings.HasPrefix(err.Error(), "NOSCRIPT") {
			newSHA, loadErr := r.client.ScriptLoad(ctx, script.def.Script).Result()
			if loadErr != nil {
				return nil, fmt.Errorf("reload script %q after NOSCRIPT: %w", name, loadErr)
			}
			script.sha = newSHA
			return r.client.EvalSha(ctx, newSHA, ordered, args...).Result()
		}
		return nil, err
	}
	return res, nil
}

// acquireLockScript implements SET NX PX semantics with an owner token, so
// the same script backs both the producer's coordination lock and the
// drainer's per-shard advisory lock.
const acquireLockScript = `
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
    return 1
end
return 0
`

// releaseLockScript only deletes the lock if we still own it, preventing a
// delayed release from clobbering another holder's lock after expiry.
const releaseLockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`
