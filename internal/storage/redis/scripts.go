package redis

const (
	// createPauseSessionScript atomically writes a session and its active indexes
	createPauseSessionScript = `
local session_key = KEYS[1]   -- breakdesk:pause:{sessionID}
local user_key = KEYS[2]      -- breakdesk:pause:active:user:{userID}
local team_set = KEYS[3]      -- breakdesk:pause:active:team:{teamID}

local session_id = ARGV[1]
local user_id = ARGV[2]
local team_id = ARGV[3]
local category = ARGV[4]
local started_at = ARGV[5]

redis.call('HSET', session_key,
  'id', session_id,
  'user_id', user_id,
  'team_id', team_id,
  'category', category,
  'started_at', started_at,
  'ended_at', '',
  'active', '1'
)

redis.call('SET', user_key, session_id)
redis.call('SADD', team_set, session_id)

return 'OK'
`

	// closePauseSessionScript atomically ends a session and clears its indexes.
	// Returns 0 when the session is missing or already closed.
	closePauseSessionScript = `
local session_key = KEYS[1]   -- breakdesk:pause:{sessionID}
local user_key = KEYS[2]      -- breakdesk:pause:active:user:{userID}
local team_set = KEYS[3]      -- breakdesk:pause:active:team:{teamID}

local session_id = ARGV[1]
local ended_at = ARGV[2]

local active = redis.call('HGET', session_key, 'active')
if active ~= '1' then
  return 0
end

redis.call('HSET', session_key, 'ended_at', ended_at, 'active', '0')
redis.call('DEL', user_key)
redis.call('SREM', team_set, session_id)

-- Set TTL on closed sessions (90 days = 7776000 seconds)
redis.call('EXPIRE', session_key, 7776000)

return 1
`

	// incrementDailyUsageScript atomically increments or creates a daily usage
	// bucket and returns the new total.
	incrementDailyUsageScript = `
local usage_key = KEYS[1]     -- breakdesk:usage:{date}:{userID}:{category}
local index_key = KEYS[2]     -- breakdesk:usage:index:{date}:{userID}

local date = ARGV[1]
local user_id = ARGV[2]
local category = ARGV[3]
local seconds = tonumber(ARGV[4])

local exists = redis.call('EXISTS', usage_key)

if exists == 0 then
  redis.call('HSET', usage_key,
    'date', date,
    'user_id', user_id,
    'category', category,
    'total_seconds', seconds
  )
  -- Set TTL to 90 days (7776000 seconds)
  redis.call('EXPIRE', usage_key, 7776000)

  redis.call('SADD', index_key, category)
  redis.call('EXPIRE', index_key, 7776000)

  return seconds
end

return redis.call('HINCRBY', usage_key, 'total_seconds', seconds)
`

	// upsertUserScript writes a user hash and keeps the email index in step
	upsertUserScript = `
local user_key = KEYS[1]      -- breakdesk:user:{id}
local email_key = KEYS[2]     -- breakdesk:user:email:{email}
local users_set = KEYS[3]     -- breakdesk:users
local email_prefix = KEYS[4]  -- breakdesk:user:email:

local user_id = ARGV[1]
local email = ARGV[2]
local first_name = ARGV[3]
local last_name = ARGV[4]
local password_hash = ARGV[5]
local is_admin = ARGV[6]
local team_id = ARGV[7]
local exceeded = ARGV[8]
local created_at = ARGV[9]

local previous_email = redis.call('HGET', user_key, 'email')
if previous_email and previous_email ~= email then
  redis.call('DEL', email_prefix .. previous_email)
end

redis.call('HSET', user_key,
  'id', user_id,
  'email', email,
  'first_name', first_name,
  'last_name', last_name,
  'password_hash', password_hash,
  'is_admin', is_admin,
  'team_id', team_id,
  'break_limit_exceeded', exceeded,
  'created_at', created_at
)

redis.call('SET', email_key, user_id)
redis.call('SADD', users_set, user_id)

return 'OK'
`
)
