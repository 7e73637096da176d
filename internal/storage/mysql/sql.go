package mysql

const listingColumns = `
  id, title, type, price, surface, rooms, link, profitability_rate,
  neighborhood, city, province, published_address, created_at`

const insertListingSQL = `
INSERT INTO listings
  (title, type, price, surface, rooms, link, profitability_rate,
   neighborhood, city, province, published_address)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Only non-NULL patch fields overwrite the stored value.
const updateListingSQL = `
UPDATE listings SET
  title              = COALESCE(?, title),
  price              = COALESCE(?, price),
  surface            = COALESCE(?, surface),
  link               = COALESCE(?, link),
  profitability_rate = COALESCE(?, profitability_rate),
  type               = COALESCE(?, type),
  neighborhood       = COALESCE(?, neighborhood),
  city               = COALESCE(?, city)
WHERE id = ?
`

const deleteListingSQL = `DELETE FROM listings WHERE id = ?`

const upsertNeighborhoodSQL = `
INSERT INTO neighborhoods (name, province)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE
  province = COALESCE(neighborhoods.province, VALUES(province))
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getListingSQL = `SELECT` + listingColumns + `
FROM listings
WHERE id = ?
`

const existsByLinkSQL = `SELECT EXISTS(SELECT 1 FROM listings WHERE link = ?)`

// listListingsPrefix is completed by buildListingsQuery with the criteria
// filters. MySQL sorts NULL first on DESC, hence the IS NULL key.
const listListingsPrefix = `SELECT` + listingColumns + `
FROM listings
WHERE 1=1`

const listListingsOrder = `
ORDER BY profitability_rate IS NULL, profitability_rate DESC, created_at DESC, id DESC`

const registeredNeighborhoodsSQL = `
SELECT name FROM neighborhoods
WHERE (? IS NULL OR province = ?)
ORDER BY name`

const listingNeighborhoodsSQL = `
SELECT DISTINCT neighborhood FROM listings
WHERE neighborhood IS NOT NULL AND (? = '' OR type = ?)
ORDER BY neighborhood`

const provincesSQL = `
SELECT DISTINCT province FROM neighborhoods
WHERE province IS NOT NULL AND province <> ''
ORDER BY province`

const countsSQL = `
SELECT
  (SELECT COUNT(*) FROM listings),
  (SELECT COUNT(*) FROM neighborhoods)`
